package identity

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestRegisterHashesPIN(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Register(ctx, Registration{Phone: "+26876123456", FirstName: "Thabo", LastName: "Dlamini", PIN: "1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected generated user id")
	}
	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte("1234")); err != nil {
		t.Fatalf("stored hash does not match PIN: %v", err)
	}

	got, err := svc.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Phone != user.Phone {
		t.Fatalf("expected phone %s, got %s", user.Phone, got.Phone)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Phone: "+26876123456", PIN: "12"}); err == nil {
		t.Fatal("expected short PIN rejection")
	}
	if _, err := svc.Register(ctx, Registration{PIN: "1234"}); err == nil {
		t.Fatal("expected missing phone rejection")
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Phone: "+26876123456", PIN: "1234"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Registration{Phone: "+26876123456", PIN: "9999"}); !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
}
