package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/notifications"
	"github.com/geocoder89/authhub/internal/repo/memory"
	"github.com/geocoder89/authhub/internal/security"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type captureNotifier struct {
	sent []notifications.SendPasswordResetOTPInput
	err  error
}

func (n *captureNotifier) SendPasswordResetOTP(_ context.Context, in notifications.SendPasswordResetOTPInput) error {
	n.sent = append(n.sent, in)
	return n.err
}

func (n *captureNotifier) last(t *testing.T) notifications.SendPasswordResetOTPInput {
	t.Helper()
	if len(n.sent) == 0 {
		t.Fatalf("expected a notification")
	}
	return n.sent[len(n.sent)-1]
}

type countingHasher struct {
	*security.BcryptHasher
	burns int
}

func (h *countingHasher) Burn(plain string) {
	h.burns++
	h.BcryptHasher.Burn(plain)
}

type fixture struct {
	svc      *AuthService
	users    *memory.UsersRepo
	otps     *memory.PasswordResetOTPsRepo
	tokens   *auth.Manager
	hasher   *countingHasher
	notifier *captureNotifier
	clock    *fakeClock
}

func newFixture(t *testing.T, opts ...func(d *Deps)) *fixture {
	t.Helper()

	f := &fixture{
		users:    memory.NewUsersRepo(),
		otps:     memory.NewPasswordResetOTPsRepo(),
		tokens:   auth.NewManager("test-secret", time.Hour, auth.NewMemoryBlacklist()),
		hasher:   &countingHasher{BcryptHasher: security.NewBcryptHasher(bcrypt.MinCost)},
		notifier: &captureNotifier{},
		clock:    &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
	}

	d := Deps{
		Users:    f.users,
		OTPs:     f.otps,
		Tokens:   f.tokens,
		Hasher:   f.hasher,
		Notifier: f.notifier,
		Clock:    f.clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&d)
	}
	f.svc = NewAuthService(d)

	return f
}

func (f *fixture) register(t *testing.T, email, password string) user.Summary {
	t.Helper()
	s, err := f.svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: email, Password: password})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return s
}

func TestRegisterThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary := f.register(t, "alice@x.com", "secret123")
	if summary.ID == "" || summary.Email != "alice@x.com" || summary.Name != "Alice" {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	stored, _ := f.users.GetByEmail(ctx, "alice@x.com")
	if stored.PasswordHash == "secret123" {
		t.Fatalf("password stored in plaintext")
	}

	res, err := f.svc.Login(ctx, Credentials{Email: "alice@x.com", Password: "secret123"})
	if err != nil || res == nil {
		t.Fatalf("expected login result, got %+v err=%v", res, err)
	}
	if res.User != summary {
		t.Fatalf("login user = %+v, want %+v", res.User, summary)
	}

	claims, err := f.tokens.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != summary.ID || claims.Email != "alice@x.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.com", "secret123")

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Other", Email: "alice@x.com", Password: "another123"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if !errors.Is(err, user.ErrEmailAlreadyUsed) {
		t.Fatalf("expected store sentinel to be wrapped, got %v", err)
	}
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.com", "secret123")

	tests := []struct {
		name      string
		creds     Credentials
		wantBurns int
	}{
		{name: "wrong password", creds: Credentials{Email: "alice@x.com", Password: "wrong-pass"}},
		{name: "unknown email", creds: Credentials{Email: "bob@x.com", Password: "secret123"}, wantBurns: 1},
		{name: "email case differs", creds: Credentials{Email: "ALICE@x.com", Password: "secret123"}, wantBurns: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.hasher.burns = 0

			res, err := f.svc.Login(context.Background(), tt.creds)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if res != nil {
				t.Fatalf("expected no result, got %+v", res)
			}
			if f.hasher.burns != tt.wantBurns {
				t.Fatalf("burns = %d, want %d", f.hasher.burns, tt.wantBurns)
			}
		})
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@x.com", "secret123")

	res, _ := f.svc.Login(ctx, Credentials{Email: "alice@x.com", Password: "secret123"})

	profile, err := f.svc.GetProfile(ctx, res.Token)
	if err != nil {
		t.Fatalf("GetProfile returned error: %v", err)
	}
	if profile.Email != "alice@x.com" || profile.CreatedAt.IsZero() {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	if err := f.svc.Logout(ctx, res.Token); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	_, err = f.svc.GetProfile(ctx, res.Token)
	if !errors.Is(err, ErrUnauthenticated) || !errors.Is(err, auth.ErrTokenBlacklisted) {
		t.Fatalf("expected blacklisted token to be rejected, got %v", err)
	}

	// second logout with the same token is still fine
	if err := f.svc.Logout(ctx, res.Token); err != nil {
		t.Fatalf("repeated Logout returned error: %v", err)
	}

	// a fresh login is unaffected
	res2, _ := f.svc.Login(ctx, Credentials{Email: "alice@x.com", Password: "secret123"})
	if _, err := f.svc.GetProfile(ctx, res2.Token); err != nil {
		t.Fatalf("new token rejected: %v", err)
	}
}

func TestGetProfile_BadToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetProfile(context.Background(), "not-a-token")
	if !errors.Is(err, ErrUnauthenticated) || !errors.Is(err, auth.ErrTokenInvalid) {
		t.Fatalf("expected invalid token error, got %v", err)
	}

	// token for a user id the store does not know
	token, _ := f.tokens.Issue("ghost", "ghost@x.com")
	_, err = f.svc.GetProfile(context.Background(), token)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unknown user, got %v", err)
	}
}

func TestSendPasswordResetOTP_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.SendPasswordResetOTP(context.Background(), "nobody@x.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("expected no notification, got %d", len(f.notifier.sent))
	}
	if f.otps.Count("nobody@x.com") != 0 {
		t.Fatalf("expected no otp rows")
	}
}

func TestSendPasswordResetOTP_StoresHashedCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@x.com", "secret123")

	if err := f.svc.SendPasswordResetOTP(ctx, "alice@x.com"); err != nil {
		t.Fatalf("SendPasswordResetOTP returned error: %v", err)
	}

	sent := f.notifier.last(t)
	if !regexp.MustCompile(`^\d{6}$`).MatchString(sent.OTP) {
		t.Fatalf("otp %q is not 6 digits", sent.OTP)
	}
	if sent.ExpiresIn != 15*time.Minute {
		t.Fatalf("expires in = %s", sent.ExpiresIn)
	}

	row, err := f.otps.LatestActive(ctx, "alice@x.com", f.clock.Now())
	if err != nil {
		t.Fatalf("expected stored otp: %v", err)
	}
	if row.OTPHash == sent.OTP {
		t.Fatalf("otp stored in plaintext")
	}
	if !row.ExpiresAt.Equal(f.clock.Now().Add(15 * time.Minute)) {
		t.Fatalf("expires_at = %s", row.ExpiresAt)
	}
}

func TestSendPasswordResetOTP_NotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.com", "secret123")
	f.notifier.err = errors.New("smtp down")

	if err := f.svc.SendPasswordResetOTP(context.Background(), "alice@x.com"); err != nil {
		t.Fatalf("expected success despite notifier failure, got %v", err)
	}
	if f.otps.Count("alice@x.com") != 1 {
		t.Fatalf("expected the otp row to remain")
	}
}

func TestResetPassword_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@x.com", "secret123")

	_ = f.svc.SendPasswordResetOTP(ctx, "alice@x.com")
	code := f.notifier.last(t).OTP

	ok, err := f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: code, NewPassword: "brandnew1"})
	if err != nil || !ok {
		t.Fatalf("expected reset to succeed, ok=%v err=%v", ok, err)
	}

	if res, _ := f.svc.Login(ctx, Credentials{Email: "alice@x.com", Password: "secret123"}); res != nil {
		t.Fatalf("old password still works")
	}
	if res, _ := f.svc.Login(ctx, Credentials{Email: "alice@x.com", Password: "brandnew1"}); res == nil {
		t.Fatalf("new password rejected")
	}
	if f.otps.Count("alice@x.com") != 0 {
		t.Fatalf("expected all otps to be deleted")
	}

	// a used code cannot be replayed
	ok, err = f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: code, NewPassword: "another12"})
	if err != nil || ok {
		t.Fatalf("expected replay to fail, ok=%v err=%v", ok, err)
	}
}

func TestResetPassword_WrongCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@x.com", "secret123")

	_ = f.svc.SendPasswordResetOTP(ctx, "alice@x.com")
	code := f.notifier.last(t).OTP

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	ok, err := f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: wrong, NewPassword: "brandnew1"})
	if err != nil || ok {
		t.Fatalf("expected wrong code to fail, ok=%v err=%v", ok, err)
	}
	if f.otps.Count("alice@x.com") != 1 {
		t.Fatalf("a failed attempt must not consume the otp")
	}
	if res, _ := f.svc.Login(ctx, Credentials{Email: "alice@x.com", Password: "secret123"}); res == nil {
		t.Fatalf("password changed after failed reset")
	}
}

func TestResetPassword_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@x.com", "secret123")

	_ = f.svc.SendPasswordResetOTP(ctx, "alice@x.com")
	code := f.notifier.last(t).OTP

	// expires_at == now counts as expired
	f.clock.now = f.clock.now.Add(15 * time.Minute)

	ok, err := f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: code, NewPassword: "brandnew1"})
	if err != nil || ok {
		t.Fatalf("expected expired code to fail, ok=%v err=%v", ok, err)
	}
}

func TestResetPassword_OnlyLatestCodeHonoured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@x.com", "secret123")

	// both issued at the same instant; the later insert wins
	_ = f.svc.SendPasswordResetOTP(ctx, "alice@x.com")
	first := f.notifier.last(t).OTP
	_ = f.svc.SendPasswordResetOTP(ctx, "alice@x.com")
	second := f.notifier.last(t).OTP

	if first != second {
		ok, _ := f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: first, NewPassword: "brandnew1"})
		if ok {
			t.Fatalf("superseded code was accepted")
		}
	}

	ok, err := f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: second, NewPassword: "brandnew1"})
	if err != nil || !ok {
		t.Fatalf("latest code rejected, ok=%v err=%v", ok, err)
	}
	if f.otps.Count("alice@x.com") != 0 {
		t.Fatalf("expected every otp for the email to be removed")
	}

	for _, code := range []string{first, second} {
		ok, err := f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: code, NewPassword: "another12"})
		if err != nil || ok {
			t.Fatalf("code %s still usable after reset, ok=%v err=%v", code, ok, err)
		}
	}
	if res, _ := f.svc.Login(ctx, Credentials{Email: "alice@x.com", Password: "brandnew1"}); res == nil {
		t.Fatalf("password from the successful reset was overwritten")
	}
}

func TestResetPassword_NoOTP(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.com", "secret123")

	ok, err := f.svc.ResetPassword(context.Background(), ResetInput{Email: "alice@x.com", OTP: "123456", NewPassword: "brandnew1"})
	if err != nil || ok {
		t.Fatalf("expected false without an otp, ok=%v err=%v", ok, err)
	}
}

type failingOTPDeletes struct {
	*memory.PasswordResetOTPsRepo
	err error
}

func (r *failingOTPDeletes) DeleteAllForEmail(context.Context, string) (int64, error) {
	return 0, r.err
}

type failingPasswordUpdates struct {
	*memory.UsersRepo
	err error
}

func (r *failingPasswordUpdates) UpdatePassword(context.Context, string, string) error {
	return r.err
}

type fakeFinalizer struct {
	calls int
	fn    func(ctx context.Context, email, hash string) error
}

func (f *fakeFinalizer) FinalizePasswordReset(ctx context.Context, email, hash string) error {
	f.calls++
	return f.fn(ctx, email, hash)
}

func requestCode(t *testing.T, f *fixture) string {
	t.Helper()
	if err := f.svc.SendPasswordResetOTP(context.Background(), "alice@x.com"); err != nil {
		t.Fatalf("SendPasswordResetOTP returned error: %v", err)
	}
	return f.notifier.last(t).OTP
}

func TestResetPassword_DeleteFailureLeavesPasswordUnchanged(t *testing.T) {
	dbDown := errors.New("db down")

	f := newFixture(t, func(d *Deps) {
		d.OTPs = &failingOTPDeletes{PasswordResetOTPsRepo: d.OTPs.(*memory.PasswordResetOTPsRepo), err: dbDown}
	})
	ctx := context.Background()
	f.register(t, "alice@x.com", "secret123")
	code := requestCode(t, f)

	ok, err := f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: code, NewPassword: "brandnew1"})
	if !errors.Is(err, dbDown) || ok {
		t.Fatalf("expected delete error, ok=%v err=%v", ok, err)
	}

	if res, _ := f.svc.Login(ctx, Credentials{Email: "alice@x.com", Password: "brandnew1"}); res != nil {
		t.Fatalf("new password went live although the reset failed")
	}
	if res, _ := f.svc.Login(ctx, Credentials{Email: "alice@x.com", Password: "secret123"}); res == nil {
		t.Fatalf("old password should still work")
	}

	// once the store recovers the same code completes the reset exactly once
	f.svc.otps = f.otps

	ok, err = f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: code, NewPassword: "brandnew1"})
	if err != nil || !ok {
		t.Fatalf("expected retry to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: code, NewPassword: "another12"})
	if err != nil || ok {
		t.Fatalf("expected replay to fail, ok=%v err=%v", ok, err)
	}
}

func TestResetPassword_UpdateFailureSpendsCode(t *testing.T) {
	dbDown := errors.New("db down")

	f := newFixture(t, func(d *Deps) {
		d.Users = &failingPasswordUpdates{UsersRepo: d.Users.(*memory.UsersRepo), err: dbDown}
	})
	ctx := context.Background()
	f.register(t, "alice@x.com", "secret123")
	code := requestCode(t, f)

	ok, err := f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: code, NewPassword: "brandnew1"})
	if !errors.Is(err, dbDown) || ok {
		t.Fatalf("expected update error, ok=%v err=%v", ok, err)
	}

	if f.otps.Count("alice@x.com") != 0 {
		t.Fatalf("expected the code to be spent")
	}
	if res, _ := f.svc.Login(ctx, Credentials{Email: "alice@x.com", Password: "secret123"}); res == nil {
		t.Fatalf("old password should still work")
	}
}

func TestResetPassword_UsesFinalizerWhenConfigured(t *testing.T) {
	dbDown := errors.New("db down")

	tests := []struct {
		name    string
		result  error
		wantOK  bool
		wantErr error
	}{
		{name: "committed", wantOK: true},
		{name: "rolled back", result: dbDown, wantErr: dbDown},
		{name: "account gone", result: user.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fin := &fakeFinalizer{}
			f := newFixture(t, func(d *Deps) { d.Resets = fin })
			fin.fn = func(ctx context.Context, email, hash string) error {
				if tt.result != nil {
					return tt.result
				}
				if err := f.users.UpdatePassword(ctx, email, hash); err != nil {
					return err
				}
				_, err := f.otps.DeleteAllForEmail(ctx, email)
				return err
			}

			ctx := context.Background()
			f.register(t, "alice@x.com", "secret123")
			code := requestCode(t, f)

			ok, err := f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: code, NewPassword: "brandnew1"})
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if fin.calls != 1 {
				t.Fatalf("finalizer calls = %d, want 1", fin.calls)
			}

			// the stores are never touched directly when a finalizer is set
			wantRows := 1
			if tt.wantOK {
				wantRows = 0
			}
			if got := f.otps.Count("alice@x.com"); got != wantRows {
				t.Fatalf("otp rows = %d, want %d", got, wantRows)
			}
		})
	}
}

func TestResetPassword_LogsDoNotCarryEmail(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, func(d *Deps) {
		d.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	})
	ctx := context.Background()
	f.register(t, "alice@x.com", "secret123")
	code := requestCode(t, f)

	ok, err := f.svc.ResetPassword(ctx, ResetInput{Email: "alice@x.com", OTP: code, NewPassword: "brandnew1"})
	if err != nil || !ok {
		t.Fatalf("expected reset to succeed, ok=%v err=%v", ok, err)
	}

	out := buf.String()
	if !bytes.Contains(buf.Bytes(), []byte("password reset completed")) {
		t.Fatalf("expected a completion log line, got %s", out)
	}
	if bytes.Contains(buf.Bytes(), []byte("alice@x.com")) {
		t.Fatalf("email leaked into logs: %s", out)
	}
}
