package domain

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters long")
)

// DefaultQuotaInBytes is granted to new accounts.
const DefaultQuotaInBytes int64 = 250 * 1024 * 1024

type User struct {
	ID                string    `json:"id" db:"id"`
	Email             string    `json:"email" db:"email"`
	PasswordHash      string    `json:"-" db:"password_hash"`
	SyncTablesEnabled bool      `json:"sync_tables_enabled" db:"sync_tables_enabled"`
	QuotaInBytes      int64     `json:"quota_in_bytes" db:"quota_in_bytes"`
	UsedBytes         int64     `json:"used_bytes" db:"used_bytes"`
	DatabaseHost      string    `json:"-" db:"database_host"`
	DatabaseName      string    `json:"-" db:"database_name"`
	DatabaseUsername  string    `json:"-" db:"database_username"`
	DatabasePassword  string    `json:"-" db:"database_password"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

func NewUser(id, email string) (*User, error) {

	email = strings.TrimSpace(email)

	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	now := time.Now().UTC()
	return &User{
		ID:                id,
		Email:             strings.ToLower(email),
		SyncTablesEnabled: true,
		QuotaInBytes:      DefaultQuotaInBytes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (u *User) SetPassword(plainPassword string) error {
	if utf8.RuneCountInString(plainPassword) < 8 {
		return ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plainPassword), 12)
	if err != nil {
		return err
	}

	u.PasswordHash = string(hash)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (u *User) CheckPassword(plainPassword string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plainPassword))
}

// RemainingQuota never goes below zero.
func (u *User) RemainingQuota() int64 {
	remaining := u.QuotaInBytes - u.UsedBytes
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Credentials returns the connection settings of the account database,
// falling back to the given defaults for unset fields.
func (u *User) Credentials(defaults DatabaseCredentials) DatabaseCredentials {
	creds := defaults
	if u.DatabaseHost != "" {
		creds.Host = u.DatabaseHost
	}
	if u.DatabaseName != "" {
		creds.Database = u.DatabaseName
	}
	if u.DatabaseUsername != "" {
		creds.Username = u.DatabaseUsername
	}
	if u.DatabasePassword != "" {
		creds.Password = u.DatabasePassword
	}
	return creds
}

func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}
