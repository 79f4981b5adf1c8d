package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

func runInternalKey(t *testing.T, hash, key string) (int, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if key != "" {
		req.Header.Set(KeyHeader, key)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := InternalKey(hash)(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})

	err := handler(c)
	if err != nil {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			t.Fatalf("unexpected error type: %v", err)
		}
		return he.Code, called
	}
	return rec.Code, called
}

func TestInternalKey_ValidKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	code, called := runInternalKey(t, string(hash), "s3cret-key")
	if code != http.StatusOK || !called {
		t.Fatalf("expected handler to run, got code=%d called=%v", code, called)
	}
}

func TestInternalKey_WrongKey(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret-key"), bcrypt.MinCost)

	code, called := runInternalKey(t, string(hash), "wrong")
	if code != http.StatusUnauthorized || called {
		t.Fatalf("expected 401 without handler call, got code=%d called=%v", code, called)
	}
}

func TestInternalKey_MissingKey(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret-key"), bcrypt.MinCost)

	code, called := runInternalKey(t, string(hash), "")
	if code != http.StatusUnauthorized || called {
		t.Fatalf("expected 401 without handler call, got code=%d called=%v", code, called)
	}
}

func TestInternalKey_DisabledWhenNoHash(t *testing.T) {
	code, called := runInternalKey(t, "", "anything")
	if code != http.StatusNotFound || called {
		t.Fatalf("expected 404 when surface disabled, got code=%d called=%v", code, called)
	}
}
