package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hoangnm-dev/meeting-scribe/pkg/jwt"
)

func authSetup(t *testing.T) (*AuthMiddleware, *jwt.Manager) {
	t.Helper()
	manager := jwt.NewManager("test-secret", 15*time.Minute)
	return NewAuthMiddleware(manager), manager
}

func runAuth(mw *AuthMiddleware, req *http.Request) (uuid.UUID, bool, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotID uuid.UUID
	var ok bool
	err := mw.Authenticate(func(c echo.Context) error {
		gotID, ok = UserIDFromContext(c)
		return nil
	})(c)
	return gotID, ok, err
}

func TestAuthenticate_BearerHeader(t *testing.T) {
	mw, manager := authSetup(t)
	userID := uuid.New()
	token, _ := manager.GenerateAccessToken(userID, "a@b.c", "member")

	req := httptest.NewRequest(http.MethodGet, "/v1/meetings", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	gotID, ok, err := runAuth(mw, req)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !ok || gotID != userID {
		t.Fatalf("user id not propagated: %v %v", gotID, ok)
	}
}

func TestAuthenticate_CookieFallback(t *testing.T) {
	mw, manager := authSetup(t)
	userID := uuid.New()
	token, _ := manager.GenerateAccessToken(userID, "a@b.c", "member")

	req := httptest.NewRequest(http.MethodGet, "/v1/meetings", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})

	gotID, ok, err := runAuth(mw, req)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !ok || gotID != userID {
		t.Fatalf("user id not propagated from cookie")
	}
}

func TestAuthenticate_MissingToken(t *testing.T) {
	mw, _ := authSetup(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/meetings", nil)

	_, _, err := runAuth(mw, req)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	mw, _ := authSetup(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/meetings", nil)
	req.Header.Set("Authorization", "Bearer bogus")

	_, _, err := runAuth(mw, req)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
