package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type fakeUserRepo struct {
	byEmail map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: map[string]*domain.User{}}
}

func (f *fakeUserRepo) Create(ctx context.Context, tx *gorm.DB, user *domain.User) error {
	copied := *user
	f.byEmail[user.Email] = &copied
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, tx *gorm.DB, userID string) (*domain.User, error) {
	for _, u := range f.byEmail {
		if u.UserID == userID {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*domain.User, error) {
	return f.byEmail[email], nil
}

func (f *fakeUserRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	_, ok := f.byEmail[email]
	return ok, nil
}

func newTestService(t *testing.T, users *fakeUserRepo) Service {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	svc, err := New(log, users, Config{JWTSecret: "test-secret", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestService(t, users)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "  Student@Example.com ", "Dana", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "student@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.PasswordHash == "hunter2hunter2" {
		t.Fatalf("password stored in the clear")
	}

	userID, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if userID != user.UserID {
		t.Fatalf("token subject %q, expected %q", userID, user.UserID)
	}

	loggedIn, token2, err := svc.Login(ctx, "student@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if loggedIn.UserID != user.UserID || token2 == "" {
		t.Fatalf("unexpected login result %+v", loggedIn)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t, newFakeUserRepo())
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@b.com", "Dana", "short"); err == nil {
		t.Fatalf("short password must be rejected")
	}
	if _, _, err := svc.Register(ctx, "", "Dana", "longenough"); err == nil {
		t.Fatalf("missing email must be rejected")
	}
	if _, _, err := svc.Register(ctx, "a@b.com", "", "longenough"); err == nil {
		t.Fatalf("missing name must be rejected")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestService(t, users)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@b.com", "Dana", "longenough"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, _, err := svc.Register(ctx, "A@B.com", "Other", "longenough")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestService(t, users)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@b.com", "Dana", "longenough"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Login(ctx, "a@b.com", "wrongwrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@b.com", "longenough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestService(t, users)
	_, token, err := svc.Register(context.Background(), "a@b.com", "Dana", "longenough")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	other, err := New(log, users, Config{JWTSecret: "different-secret", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := other.ParseToken(token); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}
}
