package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"wildpals/internal/model"
)

// =============================================================================
// TOKEN PAIR TESTS
// =============================================================================

func TestAuthService_GenerateTokenPair(t *testing.T) {
	var stored *model.RefreshToken
	mockTokens := &mockRefreshTokenRepository{
		createFn: func(ctx context.Context, token *model.RefreshToken) error {
			token.ID = "tok-1"
			stored = token
			return nil
		},
	}
	svc := NewAuthService(mockTokens, &mockUserRepository{}, &mockEmailSender{}, testConfig())

	pair, err := svc.GenerateTokenPair(context.Background(), 42, "ios/1.0", "203.0.113.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pair.AccessToken == "" {
		t.Error("expected access token")
	}
	if pair.RefreshToken == "" {
		t.Error("expected refresh token")
	}
	if pair.ExpiresIn != 3600 {
		t.Errorf("expires_in = %d, want 3600", pair.ExpiresIn)
	}

	if stored == nil {
		t.Fatal("refresh token was not persisted")
	}
	if stored.UserID != 42 {
		t.Errorf("stored user_id = %d, want 42", stored.UserID)
	}
	// Only the hash goes to the database.
	if stored.TokenHash == pair.RefreshToken {
		t.Error("refresh token must be stored hashed")
	}
	if stored.DeviceInfo == nil || *stored.DeviceInfo != "ios/1.0" {
		t.Errorf("device_info = %v, want ios/1.0", stored.DeviceInfo)
	}
}

func TestAuthService_GenerateTokenPair_NoDeviceInfo(t *testing.T) {
	var stored *model.RefreshToken
	mockTokens := &mockRefreshTokenRepository{
		createFn: func(ctx context.Context, token *model.RefreshToken) error {
			token.ID = "tok-1"
			stored = token
			return nil
		},
	}
	svc := NewAuthService(mockTokens, &mockUserRepository{}, &mockEmailSender{}, testConfig())

	// Clients that send no User-Agent still get a session; the optional
	// columns stay NULL rather than faking empty strings.
	pair, err := svc.GenerateTokenPair(context.Background(), 42, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair.RefreshToken == "" {
		t.Error("expected refresh token")
	}
	if stored.DeviceInfo != nil {
		t.Errorf("device_info = %v, want nil", stored.DeviceInfo)
	}
	if stored.IPAddress != nil {
		t.Errorf("ip_address = %v, want nil", stored.IPAddress)
	}
}

// =============================================================================
// REFRESH ROTATION TESTS
// =============================================================================

func TestAuthService_RefreshTokens_Rotation(t *testing.T) {
	now := time.Now()
	oldToken := &model.RefreshToken{
		ID:        "tok-old",
		UserID:    7,
		ExpiresAt: now.Add(time.Hour),
	}

	mockTokens := &mockRefreshTokenRepository{
		findByTokenHashFn: func(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
			if tokenHash == oldToken.TokenHash {
				return oldToken, nil
			}
			// Second lookup resolves the freshly created replacement.
			return &model.RefreshToken{ID: "tok-new", UserID: 7, ExpiresAt: now.Add(time.Hour)}, nil
		},
		createFn: func(ctx context.Context, token *model.RefreshToken) error {
			token.ID = "tok-new"
			return nil
		},
	}
	svc := NewAuthService(mockTokens, &mockUserRepository{}, &mockEmailSender{}, testConfig())

	// Seed the old token's hash the way the service computes it.
	raw := "raw-refresh-token"
	oldToken.TokenHash = svc.hashToken(raw)

	pair, userID, err := svc.RefreshTokens(context.Background(), raw, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != 7 {
		t.Errorf("user_id = %d, want 7", userID)
	}
	if pair.RefreshToken == raw {
		t.Error("rotation must issue a new refresh token")
	}

	// The presented token is revoked, linked to its replacement.
	if len(mockTokens.revokeCalls) != 1 || mockTokens.revokeCalls[0] != "tok-old" {
		t.Errorf("revoke calls = %v, want [tok-old]", mockTokens.revokeCalls)
	}
}

func TestAuthService_RefreshTokens_ReuseRevokesFamily(t *testing.T) {
	revokedAt := time.Now().Add(-time.Minute)
	mockTokens := &mockRefreshTokenRepository{
		findByTokenHashFn: func(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
			return &model.RefreshToken{
				ID:        "tok-stolen",
				UserID:    7,
				ExpiresAt: time.Now().Add(time.Hour),
				RevokedAt: &revokedAt,
			}, nil
		},
	}
	svc := NewAuthService(mockTokens, &mockUserRepository{}, &mockEmailSender{}, testConfig())

	_, _, err := svc.RefreshTokens(context.Background(), "reused-token", "", "")
	if !errors.Is(err, model.ErrRefreshTokenReused) {
		t.Fatalf("error = %v, want %v", err, model.ErrRefreshTokenReused)
	}

	// Reuse of a revoked token nukes every session for the user.
	if len(mockTokens.revokeAllCalls) != 1 || mockTokens.revokeAllCalls[0] != 7 {
		t.Errorf("revokeAll calls = %v, want [7]", mockTokens.revokeAllCalls)
	}
}

func TestAuthService_RefreshTokens_Expired(t *testing.T) {
	mockTokens := &mockRefreshTokenRepository{
		findByTokenHashFn: func(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
			return &model.RefreshToken{
				ID:        "tok-stale",
				UserID:    7,
				ExpiresAt: time.Now().Add(-time.Hour),
			}, nil
		},
	}
	svc := NewAuthService(mockTokens, &mockUserRepository{}, &mockEmailSender{}, testConfig())

	_, _, err := svc.RefreshTokens(context.Background(), "stale-token", "", "")
	if !errors.Is(err, model.ErrRefreshTokenExpired) {
		t.Fatalf("error = %v, want %v", err, model.ErrRefreshTokenExpired)
	}
	if len(mockTokens.revokeAllCalls) != 0 {
		t.Error("expired token must not trigger family revocation")
	}
}

func TestAuthService_RefreshTokens_Unknown(t *testing.T) {
	svc := NewAuthService(&mockRefreshTokenRepository{}, &mockUserRepository{}, &mockEmailSender{}, testConfig())

	_, _, err := svc.RefreshTokens(context.Background(), "never-issued", "", "")
	if !errors.Is(err, model.ErrRefreshTokenNotFound) {
		t.Fatalf("error = %v, want %v", err, model.ErrRefreshTokenNotFound)
	}
}

// =============================================================================
// PASSWORD RESET TESTS
// =============================================================================

func TestAuthService_RequestPasswordReset(t *testing.T) {
	var storedHash string
	mockUsers := &mockUserRepository{
		getByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 3, Name: "Alice", Email: email}, nil
		},
		setResetTokenFn: func(ctx context.Context, userID int64, tokenHash string, expires time.Time) error {
			storedHash = tokenHash
			return nil
		},
	}
	email := &mockEmailSender{}
	svc := NewAuthService(&mockRefreshTokenRepository{}, mockUsers, email, testConfig())

	if err := svc.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(email.resetEmails) != 1 || email.resetEmails[0] != "alice@example.com" {
		t.Fatalf("reset emails = %v, want [alice@example.com]", email.resetEmails)
	}

	// The mailed link carries the raw token; the database only sees its hash.
	link := email.resetURLs[0]
	if !strings.Contains(link, "?token=") {
		t.Fatalf("reset URL %q missing token parameter", link)
	}
	rawToken := link[strings.Index(link, "?token=")+len("?token="):]
	if storedHash == rawToken {
		t.Error("reset token must be stored hashed")
	}
	if storedHash == "" {
		t.Error("reset token hash was not stored")
	}
}

func TestAuthService_RequestPasswordReset_UnknownEmail(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewAuthService(&mockRefreshTokenRepository{}, &mockUserRepository{}, email, testConfig())

	// Unknown address reports success so the endpoint can't probe accounts.
	if err := svc.RequestPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.resetEmails) != 0 {
		t.Error("no email should be sent for an unknown address")
	}
}

func TestAuthService_ResetPassword(t *testing.T) {
	consumed := false
	mockUsers := &mockUserRepository{
		resetPasswordFn: func(ctx context.Context, tokenHash, passwordHashed string) (*model.User, error) {
			if consumed {
				return nil, model.ErrResetTokenInvalid
			}
			consumed = true
			return &model.User{ID: 3, Name: "Alice", Email: "alice@example.com"}, nil
		},
	}
	mockTokens := &mockRefreshTokenRepository{}
	email := &mockEmailSender{}
	svc := NewAuthService(mockTokens, mockUsers, email, testConfig())

	if err := svc.ResetPassword(context.Background(), "raw-token", "newpassword"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A successful reset kills every outstanding session.
	if len(mockTokens.revokeAllCalls) != 1 || mockTokens.revokeAllCalls[0] != 3 {
		t.Errorf("revokeAll calls = %v, want [3]", mockTokens.revokeAllCalls)
	}
	if len(email.changedEmails) != 1 {
		t.Error("password changed notification was not sent")
	}

	// The token is single-use: the second attempt fails.
	err := svc.ResetPassword(context.Background(), "raw-token", "anotherpassword")
	if !errors.Is(err, model.ErrResetTokenInvalid) {
		t.Fatalf("error = %v, want %v", err, model.ErrResetTokenInvalid)
	}
}

func TestAuthService_ResetPassword_ShortPassword(t *testing.T) {
	svc := NewAuthService(&mockRefreshTokenRepository{}, &mockUserRepository{}, &mockEmailSender{}, testConfig())

	err := svc.ResetPassword(context.Background(), "raw-token", "abc")
	if !errors.Is(err, model.ErrPasswordTooShort) {
		t.Fatalf("error = %v, want %v", err, model.ErrPasswordTooShort)
	}
}
