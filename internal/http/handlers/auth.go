package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/authhub/internal/actorctx"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/service"
	"github.com/gin-gonic/gin"
)

// AuthService is the subset of service.AuthService the handlers call.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (user.Summary, error)
	Login(ctx context.Context, creds service.Credentials) (*service.LoginResult, error)
	Logout(ctx context.Context, token string) error
	GetProfile(ctx context.Context, token string) (user.Profile, error)
	SendPasswordResetOTP(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in service.ResetInput) (bool, error)
}

type AuthHandler struct {
	svc    AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{svc: svc, logger: logger}
}

type RegisterRequest struct {
	Name              string `json:"name" binding:"required,max=255"`
	Email             string `json:"email" binding:"required,email,max=255"`
	Password          string `json:"password" binding:"required,min=8"`
	ConfirmedPassword string `json:"confirmed_password" binding:"required,eqfield=Password"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Email             string `json:"email" binding:"required,email"`
	OTP               string `json:"otp" binding:"required,len=6,numeric"`
	Password          string `json:"password" binding:"required,min=8"`
	ConfirmedPassword string `json:"confirmed_password" binding:"required,eqfield=Password"`
}

// bcrypt at default cost plus a DB round trip fits well inside this.
const requestTimeout = 5 * time.Second

func withTimeout(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), requestTimeout)
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	summary, err := h.svc.Register(cctx, service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})

	if err != nil {
		if errors.Is(err, service.ErrDuplicateEmail) {
			RespondConflict(ctx, "Email is already registered.", gin.H{
				"fields": []FieldError{{
					Field:   "email",
					Rule:    "unique",
					Message: "Email is already registered.",
				}},
			})
			return
		}

		h.logger.ErrorContext(cctx, "register failed", "err", err)
		RespondInternal(ctx)
		return
	}

	RespondSuccess(ctx, http.StatusCreated, "User registered successfully.", gin.H{"user": summary})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := h.svc.Login(cctx, service.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		h.logger.ErrorContext(cctx, "login failed", "err", err)
		RespondInternal(ctx)
		return
	}

	if result == nil {
		RespondUnauthorized(ctx, "Invalid credentials.")
		return
	}

	RespondSuccess(ctx, http.StatusOK, "Login successful.", result)
}

// Logout always answers 200 once the gate has accepted the token.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	principal, ok := actorctx.PrincipalFrom(ctx.Request.Context())
	if !ok {
		RespondUnauthorized(ctx, "Token not provided or authorization header is missing.")
		return
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := h.svc.Logout(cctx, principal.Token); err != nil {
		h.logger.WarnContext(cctx, "logout could not invalidate token", "user_id", principal.UserID, "err", err)
	}

	RespondSuccess(ctx, http.StatusOK, "Successfully logged out.", nil)
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	principal, ok := actorctx.PrincipalFrom(ctx.Request.Context())
	if !ok {
		RespondUnauthorized(ctx, "Token not provided or authorization header is missing.")
		return
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	profile, err := h.svc.GetProfile(cctx, principal.Token)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrUserNotFound):
			RespondUnauthorized(ctx, "User not found.")
		case errors.Is(err, service.ErrUnauthenticated):
			RespondUnauthorized(ctx, "Token is invalid.")
		default:
			h.logger.ErrorContext(cctx, "load profile failed", "err", err)
			RespondInternal(ctx)
		}
		return
	}

	RespondSuccess(ctx, http.StatusOK, "User profile retrieved successfully.", profile)
}

// RequestPasswordReset answers the same way whether or not the email exists.
func (h *AuthHandler) RequestPasswordReset(ctx *gin.Context) {
	var req PasswordResetRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := h.svc.SendPasswordResetOTP(cctx, req.Email); err != nil {
		h.logger.ErrorContext(cctx, "password reset request failed", "err", err)
	}

	RespondSuccess(ctx, http.StatusOK, "Password reset OTP has been sent to your email.", nil)
}

func (h *AuthHandler) ConfirmPasswordReset(ctx *gin.Context) {
	var req PasswordResetConfirmRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	ok, err := h.svc.ResetPassword(cctx, service.ResetInput{
		Email:       req.Email,
		OTP:         req.OTP,
		NewPassword: req.Password,
	})
	if err != nil {
		h.logger.ErrorContext(cctx, "password reset failed", "err", err)
		RespondInternal(ctx)
		return
	}

	if !ok {
		RespondBadRequest(ctx, "Invalid or expired OTP.", nil)
		return
	}

	RespondSuccess(ctx, http.StatusAccepted, "Password has been reset successfully.", nil)
}
