package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"wildpals/internal/model"
)

// =============================================================================
// REGISTER TESTS
// =============================================================================

func TestUserService_Register_Success(t *testing.T) {
	mockRepo := &mockUserRepository{
		existsByEmailFn: func(ctx context.Context, email string) (bool, error) {
			return false, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			user.ID = 1
			user.CreatedAt = time.Now()
			user.UpdatedAt = time.Now()
			return nil
		},
	}
	svc := NewUserService(mockRepo)

	req := &model.RegisterRequest{
		Name:     "Test Rider",
		Email:    "Rider@Example.COM",
		Password: "securepassword123",
	}

	user, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}

	// Email is stored lowercased so lookups are case-insensitive.
	if user.Email != "rider@example.com" {
		t.Errorf("email = %q, want %q", user.Email, "rider@example.com")
	}
	if user.Name != req.Name {
		t.Errorf("name = %q, want %q", user.Name, req.Name)
	}

	// Verify password was hashed, not stored in plain text.
	if user.PasswordHashed == req.Password {
		t.Error("password should be hashed, not stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHashed), []byte(req.Password)); err != nil {
		t.Error("password hash should be valid bcrypt hash")
	}

	if mockRepo.createCalls != 1 {
		t.Errorf("Create called %d times, want 1", mockRepo.createCalls)
	}
}

func TestUserService_Register_EmailExists(t *testing.T) {
	mockRepo := &mockUserRepository{
		existsByEmailFn: func(ctx context.Context, email string) (bool, error) {
			return true, nil
		},
	}
	svc := NewUserService(mockRepo)

	user, err := svc.Register(context.Background(), &model.RegisterRequest{
		Name:     "Someone",
		Email:    "taken@example.com",
		Password: "password123",
	})

	if !errors.Is(err, model.ErrEmailExists) {
		t.Errorf("error = %v, want %v", err, model.ErrEmailExists)
	}
	if user != nil {
		t.Error("user should be nil when registration fails")
	}
	if mockRepo.createCalls != 0 {
		t.Error("Create should not be called when email exists")
	}
}

func TestUserService_Register_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     *model.RegisterRequest
		wantErr error
	}{
		{
			name: "missing name",
			req:  &model.RegisterRequest{Name: "  ", Email: "a@b.com", Password: "password123"},
		},
		{
			name: "missing email",
			req:  &model.RegisterRequest{Name: "A", Email: "", Password: "password123"},
		},
		{
			name: "email without at sign",
			req:  &model.RegisterRequest{Name: "A", Email: "not-an-email", Password: "password123"},
		},
		{
			name:    "short password",
			req:     &model.RegisterRequest{Name: "A", Email: "a@b.com", Password: "abc"},
			wantErr: model.ErrPasswordTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &mockUserRepository{}
			svc := NewUserService(mockRepo)

			_, err := svc.Register(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if mockRepo.createCalls != 0 {
				t.Error("Create should not be called for invalid input")
			}
		})
	}
}

// =============================================================================
// LOGIN TESTS
// =============================================================================

func TestUserService_Login(t *testing.T) {
	validPassword := "correctpassword"
	validHash, _ := bcrypt.GenerateFromPassword([]byte(validPassword), bcrypt.MinCost)

	testUser := &model.User{
		ID:             1,
		Email:          "rider@example.com",
		PasswordHashed: string(validHash),
	}

	tests := []struct {
		name          string
		email         string
		password      string
		mockGetByMail func(ctx context.Context, email string) (*model.User, error)
		wantErr       error
		wantUser      bool
	}{
		{
			name:     "successful login",
			email:    "rider@example.com",
			password: validPassword,
			mockGetByMail: func(ctx context.Context, email string) (*model.User, error) {
				return testUser, nil
			},
			wantErr:  nil,
			wantUser: true,
		},
		{
			name:     "unknown email",
			email:    "nobody@example.com",
			password: "anypassword",
			mockGetByMail: func(ctx context.Context, email string) (*model.User, error) {
				return nil, model.ErrUserNotFound
			},
			wantErr:  model.ErrInvalidCredentials, // Don't reveal the account doesn't exist
			wantUser: false,
		},
		{
			name:     "wrong password",
			email:    "rider@example.com",
			password: "wrongpassword",
			mockGetByMail: func(ctx context.Context, email string) (*model.User, error) {
				return testUser, nil
			},
			wantErr:  model.ErrInvalidCredentials,
			wantUser: false,
		},
		{
			name:     "database error",
			email:    "rider@example.com",
			password: validPassword,
			mockGetByMail: func(ctx context.Context, email string) (*model.User, error) {
				return nil, errors.New("database error")
			},
			wantErr:  model.ErrInvalidCredentials, // Don't reveal internal errors
			wantUser: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &mockUserRepository{getByEmailFn: tt.mockGetByMail}
			svc := NewUserService(mockRepo)

			user, err := svc.Login(context.Background(), &model.LoginRequest{
				Email:    tt.email,
				Password: tt.password,
			})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if tt.wantUser && user == nil {
				t.Error("expected user, got nil")
			}
			if !tt.wantUser && user != nil {
				t.Error("expected nil user")
			}
		})
	}
}

// =============================================================================
// PROFILE AND SEARCH TESTS
// =============================================================================

func TestUserService_UpdateProfile_EmptyName(t *testing.T) {
	svc := NewUserService(&mockUserRepository{})

	empty := "   "
	_, err := svc.UpdateProfile(context.Background(), 1, &model.UpdateProfileRequest{Name: &empty})
	if err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestUserService_Search(t *testing.T) {
	var gotQuery string
	var gotLimit int
	mockRepo := &mockUserRepository{
		searchFn: func(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
			gotQuery = query
			gotLimit = limit
			return []model.UserSummary{{ID: 1, Name: "Alice"}}, nil
		},
	}
	svc := NewUserService(mockRepo)

	results, err := svc.Search(context.Background(), "  alice  ", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if gotQuery != "alice" {
		t.Errorf("query = %q, want trimmed %q", gotQuery, "alice")
	}
	if gotLimit != 20 {
		t.Errorf("limit = %d, want default 20", gotLimit)
	}

	// Blank query short-circuits without hitting the repository.
	results, err = svc.Search(context.Background(), "   ", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("blank query should return no results, got %d", len(results))
	}
}
