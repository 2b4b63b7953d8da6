// Package auth verifies sessions. Identity lives in an external auth system;
// this process only asks it who a token belongs to and trusts the answer.
// A local JWT verifier exists for development, where no auth system runs.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrUnauthenticated means the token was missing, invalid or expired.
var ErrUnauthenticated = errors.New("unauthenticated")

// Session is what a successful verification yields. The ledger trusts the
// UserID as-is.
type Session struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Verifier resolves a session token to a session.
type Verifier interface {
	Verify(ctx context.Context, token string) (Session, error)
}

// ServiceVerifier checks sessions against the external auth system over
// HTTP.
type ServiceVerifier struct {
	baseURL string
	client  *http.Client
}

func NewServiceVerifier(baseURL string) *ServiceVerifier {
	return &ServiceVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *ServiceVerifier) Verify(ctx context.Context, token string) (Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/session", nil)
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("auth service unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Session{}, ErrUnauthenticated
	default:
		return Session{}, fmt.Errorf("auth service returned %d", resp.StatusCode)
	}

	var body struct {
		UserID string `json:"userId"`
		User   struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if body.UserID == "" {
		return Session{}, ErrUnauthenticated
	}
	return Session{UserID: body.UserID, Username: body.User.Username}, nil
}

// TokenVerifier validates HS256 JWTs locally with a shared secret. Dev mode
// only; production delegates to the auth system.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Session{}, ErrUnauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, ErrUnauthenticated
	}
	userID, _ := claims["userID"].(string)
	if userID == "" {
		return Session{}, ErrUnauthenticated
	}
	username, _ := claims["username"].(string)
	return Session{UserID: userID, Username: username}, nil
}
