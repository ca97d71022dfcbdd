package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/domain/otp"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/notifications"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/geocoder89/authhub/internal/security"
)

const defaultOTPTTL = 15 * time.Minute

type UserStore interface {
	Create(ctx context.Context, name, email, passwordHash string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

type OTPStore interface {
	Create(ctx context.Context, req otp.CreateRequest) (otp.PasswordResetOTP, error)
	LatestActive(ctx context.Context, email string, now time.Time) (otp.PasswordResetOTP, error)
	DeleteAllForEmail(ctx context.Context, email string) (int64, error)
}

// ResetFinalizer stores the new hash and removes every OTP for email in one
// atomic step. It returns user.ErrUserNotFound when no account matches.
type ResetFinalizer interface {
	FinalizePasswordReset(ctx context.Context, email, passwordHash string) error
}

type TokenIssuer interface {
	Issue(userID, email string) (string, error)
	Verify(ctx context.Context, token string) (*auth.Claims, error)
	Invalidate(ctx context.Context, token string) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) (bool, error)
	Burn(plain string)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type Deps struct {
	Users    UserStore
	OTPs     OTPStore
	Tokens   TokenIssuer
	Hasher   PasswordHasher
	Notifier notifications.Notifier

	// optional
	Resets ResetFinalizer
	Clock  Clock
	Logger *slog.Logger
	Prom   *observability.Prom
	OTPTTL time.Duration
}

type AuthService struct {
	users    UserStore
	otps     OTPStore
	tokens   TokenIssuer
	hasher   PasswordHasher
	notifier notifications.Notifier
	resets   ResetFinalizer
	clock    Clock
	logger   *slog.Logger
	prom     *observability.Prom
	otpTTL   time.Duration
}

func NewAuthService(d Deps) *AuthService {
	s := &AuthService{
		users:    d.Users,
		otps:     d.OTPs,
		tokens:   d.Tokens,
		hasher:   d.Hasher,
		notifier: d.Notifier,
		resets:   d.Resets,
		clock:    d.Clock,
		logger:   d.Logger,
		prom:     d.Prom,
		otpTTL:   d.OTPTTL,
	}

	if s.clock == nil {
		s.clock = systemClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.otpTTL <= 0 {
		s.otpTTL = defaultOTPTTL
	}

	return s
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type Credentials struct {
	Email    string
	Password string
}

type LoginResult struct {
	Token string       `json:"token"`
	User  user.Summary `json:"user"`
}

type ResetInput struct {
	Email       string
	OTP         string
	NewPassword string
}

// Register creates the account. No token is issued; callers log in next.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (user.Summary, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return user.Summary{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Create(ctx, in.Name, in.Email, hash)
	if err != nil {
		if errors.Is(err, user.ErrEmailAlreadyUsed) {
			s.prom.AuthEvent("register", "duplicate")
			return user.Summary{}, fmt.Errorf("%w: %w", ErrDuplicateEmail, err)
		}
		s.prom.AuthEvent("register", "error")
		return user.Summary{}, fmt.Errorf("create user: %w", err)
	}

	s.prom.AuthEvent("register", "success")
	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID)

	return u.Summary(), nil
}

// Login returns nil, nil when the email is unknown or the password is wrong.
// Both paths cost one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			s.hasher.Burn(creds.Password)
			s.prom.AuthEvent("login", "failure")
			return nil, nil
		}
		s.prom.AuthEvent("login", "error")
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(u.PasswordHash, creds.Password)
	if err != nil {
		s.prom.AuthEvent("login", "error")
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.prom.AuthEvent("login", "failure")
		return nil, nil
	}

	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		s.prom.AuthEvent("login", "error")
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.prom.AuthEvent("login", "success")

	return &LoginResult{Token: token, User: u.Summary()}, nil
}

// Logout invalidates the token. Repeating it for the same token succeeds.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.tokens.Invalidate(ctx, token); err != nil {
		s.prom.AuthEvent("logout", "error")
		return fmt.Errorf("invalidate token: %w", err)
	}

	s.prom.AuthEvent("logout", "success")
	return nil
}

func (s *AuthService) GetProfile(ctx context.Context, token string) (user.Profile, error) {
	claims, err := s.tokens.Verify(ctx, token)
	if err != nil {
		return user.Profile{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return user.Profile{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return user.Profile{}, fmt.Errorf("load user: %w", err)
	}

	return u.Profile(), nil
}

// SendPasswordResetOTP stores a hashed one-time code for a known email and
// hands the plaintext to the notifier. Unknown emails and delivery failures
// both look like success to the caller.
func (s *AuthService) SendPasswordResetOTP(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			s.prom.AuthEvent("password_reset_request", "unknown_email")
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	code, err := security.GenerateOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	hash, err := s.hasher.Hash(code)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}

	now := s.clock.Now()

	row, err := s.otps.Create(ctx, otp.CreateRequest{
		Email:     u.Email,
		OTPHash:   hash,
		ExpiresAt: now.Add(s.otpTTL),
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	err = s.notifier.SendPasswordResetOTP(ctx, notifications.SendPasswordResetOTPInput{
		Email:     u.Email,
		OTP:       code,
		ExpiresIn: s.otpTTL,
	})
	if err != nil {
		// the stored row simply expires unused
		s.prom.AuthEvent("password_reset_request", "notify_failed")
		s.logger.WarnContext(ctx, "password reset otp delivery failed",
			"user_id", u.ID,
			"otp_id", row.ID,
			"err", err,
		)
		return nil
	}

	s.prom.AuthEvent("password_reset_request", "sent")
	s.logger.InfoContext(ctx, "password reset otp issued", "user_id", u.ID, "otp_id", row.ID)

	return nil
}

// ResetPassword checks code against the newest unexpired OTP for email. On a
// match the password is replaced and every OTP for the email is removed.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetInput) (bool, error) {
	row, err := s.otps.LatestActive(ctx, in.Email, s.clock.Now())
	if err != nil {
		if errors.Is(err, otp.ErrOTPNotFound) {
			s.prom.AuthEvent("password_reset_confirm", "failure")
			return false, nil
		}
		return false, fmt.Errorf("load otp: %w", err)
	}

	ok, err := s.hasher.Verify(row.OTPHash, in.OTP)
	if err != nil {
		return false, fmt.Errorf("verify otp: %w", err)
	}
	if !ok {
		s.prom.AuthEvent("password_reset_confirm", "failure")
		return false, nil
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	if err := s.finalizeReset(ctx, in.Email, hash); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			s.prom.AuthEvent("password_reset_confirm", "failure")
			return false, nil
		}
		return false, err
	}

	s.prom.AuthEvent("password_reset_confirm", "success")
	s.logger.InfoContext(ctx, "password reset completed", "otp_id", row.ID)

	return true, nil
}

// finalizeReset uses the transactional finalizer when one is configured.
// Otherwise the OTPs are deleted before the password changes, so a failure
// part way leaves at worst a spent code and never a reusable one.
func (s *AuthService) finalizeReset(ctx context.Context, email, hash string) error {
	if s.resets != nil {
		if err := s.resets.FinalizePasswordReset(ctx, email, hash); err != nil {
			return fmt.Errorf("finalize reset: %w", err)
		}
		return nil
	}

	if _, err := s.otps.DeleteAllForEmail(ctx, email); err != nil {
		return fmt.Errorf("delete otps: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, email, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return nil
}
