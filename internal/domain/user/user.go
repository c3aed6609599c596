package user

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           string    `json:"_id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password"` // never expose hash in JSON
	Avatar       string    `json:"avatar" bson:"avatar"`
	CreatedAt    time.Time `json:"date" bson:"date"`
}

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("user already exists")
)

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,notblank" msg:"Name is required"`
	Email    string `json:"email" binding:"required,trimmed_email" msg:"Please include a valid email"`
	Password string `json:"password" binding:"required,min=6" msg:"Please enter a password with 6 or more characters"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,trimmed_email" msg:"Please include a valid email"`
	Password string `json:"password" binding:"required" msg:"Password is required"`
}

// New builds a user ready to persist. passwordHash must already be hashed.
func New(name, email, passwordHash string) User {
	email = NormalizeEmail(email)

	return User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: passwordHash,
		Avatar:       AvatarURL(email),
		CreatedAt:    time.Now().UTC(),
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AvatarURL returns the Gravatar image for email: 200px, pg rated, mystery-man fallback.
func AvatarURL(email string) string {
	sum := md5.Sum([]byte(NormalizeEmail(email)))

	q := url.Values{}
	q.Set("s", "200")
	q.Set("r", "pg")
	q.Set("d", "mm")

	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?" + q.Encode()
}
