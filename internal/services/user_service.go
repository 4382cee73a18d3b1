package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"finanzapp/internal/core"
)

const (
	apiKeyPrefix      = "fin_"
	apiKeyBytes       = 32
	minUsernameLength = 3
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type UserStore interface {
	CreateUser(ctx context.Context, u core.User) error
	UserByAPIKey(ctx context.Context, key string) (core.User, error)
	UserByUsername(ctx context.Context, username string) (core.User, error)
	SetAPIKey(ctx context.Context, userID, key string) error
}

type UserService struct {
	store UserStore
	now   func() time.Time
}

func NewUserService(store UserStore) *UserService {
	return &UserService{store: store, now: time.Now}
}

// CreateUser registers username with a fresh API key.
func (s *UserService) CreateUser(ctx context.Context, username string) (core.User, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return core.User{}, err
	}
	key, err := GenerateAPIKey()
	if err != nil {
		return core.User{}, err
	}
	u := core.User{
		ID:        uuid.NewString(),
		Username:  username,
		APIKey:    key,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return core.User{}, err
	}
	slog.InfoContext(ctx, "User created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Authenticate resolves the owner of an API key.
func (s *UserService) Authenticate(ctx context.Context, apiKey string) (core.User, error) {
	if !strings.HasPrefix(apiKey, apiKeyPrefix) {
		return core.User{}, core.ErrNotFound
	}
	return s.store.UserByAPIKey(ctx, apiKey)
}

// RotateAPIKey replaces the user's key; the old key stops working at once.
func (s *UserService) RotateAPIKey(ctx context.Context, username string) (core.User, error) {
	u, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		return core.User{}, err
	}
	key, err := GenerateAPIKey()
	if err != nil {
		return core.User{}, err
	}
	if err := s.store.SetAPIKey(ctx, u.ID, key); err != nil {
		return core.User{}, fmt.Errorf("set api key: %w", err)
	}
	u.APIKey = key
	slog.InfoContext(ctx, "API key rotated", "user_id", u.ID)
	return u, nil
}

func ValidateUsername(username string) error {
	if len(username) < minUsernameLength {
		return core.NewValidationError("username", fmt.Sprintf("must have at least %d characters", minUsernameLength))
	}
	if !usernamePattern.MatchString(username) {
		return core.NewValidationError("username", "may only contain a-z, A-Z, 0-9, _ and -")
	}
	return nil
}

// GenerateAPIKey returns "fin_" followed by 32 random bytes in unpadded
// base64url.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
