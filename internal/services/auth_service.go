package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"vouchportal/internal/identity"
	"vouchportal/internal/models"

	"github.com/dgrijalva/jwt-go"
)

// AuthService turns a verified platform handshake into a session token.
type AuthService struct {
	users      *UserService
	verifier   *identity.Verifier
	jwtSecret  []byte
	tokenDurat time.Duration // Duration for which JWT is valid
}

// NewAuthService creates a new AuthService.
func NewAuthService(users *UserService, verifier *identity.Verifier, jwtSecret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		users:      users,
		verifier:   verifier,
		jwtSecret:  []byte(jwtSecret),
		tokenDurat: tokenTTL,
	}
}

// Handshake verifies the WebApp initData, registers or refreshes the user and
// returns a signed session token.
func (s *AuthService) Handshake(ctx context.Context, initData string) (string, *models.User, error) {
	id, err := s.verifier.Verify(initData)
	if err != nil {
		log.Printf("Handshake verification failed: %v", err)
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}

	user, err := s.users.EnsureUser(ctx, *id)
	if err != nil {
		return "", nil, fmt.Errorf("failed to register user %s: %w", id.ExternalID, err)
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// IssueToken signs an HS256 session token for user.
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ExternalID,
		"handle":  user.Handle,
		"exp":     now.Add(s.tokenDurat).Unix(),
		"iat":     now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if id, _ := claims["user_id"].(string); id == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	return claims, nil
}
