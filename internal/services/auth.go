package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/postmod/apiserver/internal/store"
	"github.com/postmod/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// hashCost is lowered in tests.
var hashCost = bcrypt.DefaultCost

// TokenConfig holds the process-wide signing settings.
type TokenConfig struct {
	SigningKey string
	Algorithm  string
	DefaultTTL time.Duration
}

// AccessToken is a signed bearer token and the claims it was issued with.
type AccessToken struct {
	Token     string
	Subject   string
	ID        string
	ExpiresAt time.Time
}

// AuthService registers users, checks passwords and issues and verifies
// access tokens.
type AuthService struct {
	users     UserRepository
	secret    []byte
	method    jwt.SigningMethod
	ttl       time.Duration
	revoked   *RevocationList
	dummyHash []byte
	now       func() time.Time
}

func NewAuthService(users UserRepository, cfg TokenConfig, revoked *RevocationList) (*AuthService, error) {
	method := jwt.GetSigningMethod(strings.ToUpper(cfg.Algorithm))
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	if cfg.SigningKey == "" {
		return nil, errors.New("signing key is required")
	}
	if cfg.DefaultTTL <= 0 {
		return nil, errors.New("default token ttl must be positive")
	}

	// Unknown usernames are compared against this hash so that both
	// failure paths cost one bcrypt comparison.
	dummyHash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), hashCost)
	if err != nil {
		return nil, err
	}

	return &AuthService{
		users:     users,
		secret:    []byte(cfg.SigningKey),
		method:    method,
		ttl:       cfg.DefaultTTL,
		revoked:   revoked,
		dummyHash: dummyHash,
		now:       time.Now,
	}, nil
}

// Register stores a new user with auto-reply disabled. A taken username
// yields store.ErrConflict.
func (s *AuthService) Register(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return types.User{}, fmt.Errorf("%w: password is too long", ErrValidation)
		}
		return types.User{}, err
	}

	return s.users.Create(ctx, types.User{
		Username:          username,
		PasswordHash:      string(hashed),
		AutoReplyEnabled:  false,
		ReplyDelaySeconds: types.DefaultReplyDelaySeconds,
	})
}

// Authenticate verifies a username/password pair.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a token with the default lifetime.
func (s *AuthService) Login(ctx context.Context, username, password string) (AccessToken, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return AccessToken{}, err
	}
	return s.IssueToken(user.Username, 0)
}

// IssueToken signs a token for subject. A ttl of zero uses the default.
func (s *AuthService) IssueToken(subject string, ttl time.Duration) (AccessToken, error) {
	if ttl == 0 {
		ttl = s.ttl
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	id := uuid.NewString()

	claims := jwt.RegisteredClaims{
		ID:        id,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return AccessToken{}, err
	}

	return AccessToken{
		Token:     signed,
		Subject:   subject,
		ID:        id,
		ExpiresAt: expiresAt,
	}, nil
}

// Authorize resolves a bearer token to its user. Every failure is
// reported as ErrInvalidToken except store errors other than not found.
func (s *AuthService) Authorize(ctx context.Context, token string) (types.User, error) {
	claims, err := s.verify(token)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
		}
		return types.User{}, err
	}
	return user, nil
}

// Revoke invalidates a valid token before it expires.
func (s *AuthService) Revoke(ctx context.Context, token string) error {
	claims, err := s.verify(token)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return fmt.Errorf("%w: token has no id", ErrInvalidToken)
	}
	s.revoked.Revoke(claims.ID)
	return nil
}

// verify checks the signature, then revocation, then expiry.
func (s *AuthService) verify(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{s.method.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if s.revoked.IsRevoked(claims.ID) {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
