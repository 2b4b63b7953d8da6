package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceVerifierAcceptsValidSession(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/session", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"userId":"user-42","user":{"username":"satoshi"}}`))
	}))
	defer srv.Close()

	session, err := NewServiceVerifier(srv.URL).Verify(context.Background(), "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-abc", gotAuth)
	assert.Equal(t, "user-42", session.UserID)
	assert.Equal(t, "satoshi", session.Username)
}

func TestServiceVerifierRejectsUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		_, err := NewServiceVerifier(srv.URL).Verify(context.Background(), "bad")
		assert.ErrorIs(t, err, ErrUnauthenticated, "status %d", status)
		srv.Close()
	}
}

func TestServiceVerifierTreatsEmptyUserAsUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"userId":""}`))
	}))
	defer srv.Close()

	_, err := NewServiceVerifier(srv.URL).Verify(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestServiceVerifierSurfacesInfraErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewServiceVerifier(srv.URL).Verify(context.Background(), "tok")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated, "5xx is an outage, not a rejection")
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestTokenVerifierAcceptsValidToken(t *testing.T) {
	signed := signToken(t, "dev-secret", jwt.MapClaims{
		"userID":   "user-7",
		"username": "hal",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	session, err := NewTokenVerifier("dev-secret").Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "user-7", session.UserID)
	assert.Equal(t, "hal", session.Username)
}

func TestTokenVerifierRejections(t *testing.T) {
	verifier := NewTokenVerifier("dev-secret")

	t.Run("wrong secret", func(t *testing.T) {
		signed := signToken(t, "other-secret", jwt.MapClaims{"userID": "user-7"})
		_, err := verifier.Verify(context.Background(), signed)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("expired", func(t *testing.T) {
		signed := signToken(t, "dev-secret", jwt.MapClaims{
			"userID": "user-7",
			"exp":    time.Now().Add(-time.Hour).Unix(),
		})
		_, err := verifier.Verify(context.Background(), signed)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("missing userID claim", func(t *testing.T) {
		signed := signToken(t, "dev-secret", jwt.MapClaims{"username": "hal"})
		_, err := verifier.Verify(context.Background(), signed)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("not a token", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), "garbage")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}
