package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClaims struct {
	userID uuid.UUID
}

func (c *stubClaims) GetUserID() uuid.UUID { return c.userID }

type stubValidator struct {
	userID uuid.UUID
	err    error
	tokens []string
}

func (v *stubValidator) ValidateToken(tokenString string) (UserIDGetter, error) {
	v.tokens = append(v.tokens, tokenString)
	if v.err != nil {
		return nil, v.err
	}
	return &stubClaims{userID: v.userID}, nil
}

// echoUserID records whether the handler ran and which user ID it saw.
type echoUserID struct {
	called bool
	userID uuid.UUID
	err    error
}

func (e *echoUserID) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.called = true
		e.userID, e.err = GetUserID(r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	echo := &echoUserID{}
	h := RequireAuth(&stubValidator{userID: uuid.New()})(echo.handler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/sessions", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
	assert.False(t, echo.called)
}

func TestRequireAuthRejectsMalformedHeaders(t *testing.T) {
	headers := []string{
		"Basic dXNlcjpwYXNz",
		"Bearer",
		"Bearer one two",
		"just-a-token",
	}

	for _, header := range headers {
		t.Run(header, func(t *testing.T) {
			echo := &echoUserID{}
			h := RequireAuth(&stubValidator{userID: uuid.New()})(echo.handler())

			req := httptest.NewRequest("GET", "/sessions", nil)
			req.Header.Set("Authorization", header)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, echo.called)
		})
	}
}

func TestRequireAuthRejectsInvalidToken(t *testing.T) {
	echo := &echoUserID{}
	validator := &stubValidator{err: errors.New("token expired")}
	h := RequireAuth(validator)(echo.handler())

	req := httptest.NewRequest("GET", "/sessions", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []string{"expired-token"}, validator.tokens)
	assert.False(t, echo.called)
}

func TestRequireAuthAttachesUserID(t *testing.T) {
	userID := uuid.New()
	echo := &echoUserID{}
	h := RequireAuth(&stubValidator{userID: userID})(echo.handler())

	req := httptest.NewRequest("GET", "/sessions", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, echo.called)
	require.NoError(t, echo.err)
	assert.Equal(t, userID, echo.userID)
}

func TestRequireAuthAcceptsLowercaseBearer(t *testing.T) {
	userID := uuid.New()
	echo := &echoUserID{}
	h := RequireAuth(&stubValidator{userID: userID})(echo.handler())

	req := httptest.NewRequest("GET", "/sessions", nil)
	req.Header.Set("Authorization", "bearer good-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, echo.userID)
}

func TestOptionalAuthPassesAnonymousThrough(t *testing.T) {
	echo := &echoUserID{}
	h := OptionalAuth(&stubValidator{userID: uuid.New()})(echo.handler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/billing/checkout", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, echo.called)
	assert.Error(t, echo.err)
}

func TestOptionalAuthAttachesUserWhenTokenValid(t *testing.T) {
	userID := uuid.New()
	echo := &echoUserID{}
	h := OptionalAuth(&stubValidator{userID: userID})(echo.handler())

	req := httptest.NewRequest("POST", "/billing/checkout", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, echo.err)
	assert.Equal(t, userID, echo.userID)
}

func TestOptionalAuthIgnoresBadToken(t *testing.T) {
	echo := &echoUserID{}
	h := OptionalAuth(&stubValidator{err: errors.New("bad signature")})(echo.handler())

	req := httptest.NewRequest("POST", "/billing/checkout", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, echo.called)
	assert.Error(t, echo.err)
}

func TestGetUserIDWithoutMiddleware(t *testing.T) {
	_, err := GetUserID(httptest.NewRequest("GET", "/", nil))
	assert.Error(t, err)
}
