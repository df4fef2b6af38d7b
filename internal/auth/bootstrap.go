package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"

	"github.com/btcsuite/btcutil/base58"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/repository"
	"github.com/google/uuid"
)

// InitialAdminEmail is the address of the auto-provisioned first admin.
const InitialAdminEmail = "admin@bunbase.local"

// EnsureInitialAdmin provisions a first admin with a random password
// when the _admins table is empty. The password is logged exactly once;
// it is not recoverable afterwards.
func EnsureInitialAdmin(ctx context.Context, admins repository.AdminRepository) error {
	count, err := admins.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password, err := randomPassword()
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	now := models.NowUTC()
	admin := &models.Admin{
		ID:           uuid.NewString(),
		Email:        InitialAdminEmail,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := admins.Create(ctx, admin); err != nil {
		return err
	}

	log.Printf("INFO: provisioned initial admin %s with password %s", InitialAdminEmail, password)
	return nil
}

// randomPassword generates a 16-character base58 password.
func randomPassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate admin password: %w", err)
	}
	encoded := base58.Encode(buf)
	if len(encoded) > 16 {
		encoded = encoded[:16]
	}
	return encoded, nil
}
