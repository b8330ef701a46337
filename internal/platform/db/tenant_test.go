package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hms/opd/internal/platform/auth"
)

func newTenantContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestExtractTenantID_FromHeader(t *testing.T) {
	c := newTenantContext("/")
	c.Request().Header.Set(TenantHeader, "hospital_abc")

	if tid := extractTenantID(c, "default"); tid != "hospital_abc" {
		t.Errorf("expected hospital_abc, got %s", tid)
	}
}

func TestExtractTenantID_FromQuery(t *testing.T) {
	c := newTenantContext("/?tenant_id=clinic_xyz")
	if tid := extractTenantID(c, "default"); tid != "clinic_xyz" {
		t.Errorf("expected clinic_xyz, got %s", tid)
	}
}

func TestExtractTenantID_Default(t *testing.T) {
	c := newTenantContext("/")
	if tid := extractTenantID(c, "default"); tid != "default" {
		t.Errorf("expected default, got %s", tid)
	}
}

func TestExtractTenantID_Priority(t *testing.T) {
	c := newTenantContext("/?tenant_id=query")
	c.Request().Header.Set(TenantHeader, "header")
	c.Set(auth.TenantContextKey, "jwt")

	if tid := extractTenantID(c, "default"); tid != "jwt" {
		t.Errorf("expected jwt (highest priority), got %s", tid)
	}

	c.Set(auth.TenantContextKey, "")
	if tid := extractTenantID(c, "default"); tid != "header" {
		t.Errorf("expected header when token tenant is empty, got %s", tid)
	}
}

func TestSchemaName(t *testing.T) {
	tests := []struct {
		input string
		want  string
		valid bool
	}{
		{"abc", `"tenant_abc"`, true},
		{"Hospital_1", `"tenant_Hospital_1"`, true},
		{"a-b", "", false},
		{"a.b", "", false},
		{"a b", "", false},
		{"", "", false},
		{"'; DROP TABLE doctor", "", false},
		{"tenant@1", "", false},
	}
	for _, tt := range tests {
		got, err := SchemaName(tt.input)
		if tt.valid {
			if err != nil {
				t.Errorf("SchemaName(%q) unexpected error: %v", tt.input, err)
			} else if got != tt.want {
				t.Errorf("SchemaName(%q) = %s, want %s", tt.input, got, tt.want)
			}
			continue
		}
		if err == nil {
			t.Errorf("SchemaName(%q) expected error", tt.input)
		}
	}
}

func TestTenantMiddleware_Skipped(t *testing.T) {
	c := newTenantContext("/health")
	called := false
	mw := TenantMiddleware(nil, "default", func(echo.Context) bool { return true })
	err := mw(func(echo.Context) error {
		called = true
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected next handler to run")
	}
}

func TestTenantMiddleware_InvalidTenant(t *testing.T) {
	c := newTenantContext("/")
	c.Request().Header.Set(TenantHeader, "bad-tenant")
	mw := TenantMiddleware(nil, "default", nil)
	err := mw(func(echo.Context) error {
		t.Error("next handler should not run")
		return nil
	})(c)

	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Code)
	}
}

func TestWithTenant(t *testing.T) {
	ctx := WithTenant(context.Background(), "test_tenant", nil)
	if tid := TenantFromContext(ctx); tid != "test_tenant" {
		t.Errorf("expected test_tenant, got %s", tid)
	}
	if ConnFromContext(ctx) != nil {
		t.Error("expected nil conn")
	}
	if TenantFromContext(context.Background()) != "" {
		t.Error("expected empty tenant from bare context")
	}
}

func TestContextValues_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBConnKey, "not-a-conn")
	if ConnFromContext(ctx) != nil {
		t.Error("expected nil when context value is wrong type")
	}
	ctx = context.WithValue(context.Background(), TenantIDKey, 12345)
	if tid := TenantFromContext(ctx); tid != "" {
		t.Errorf("expected empty string, got %q", tid)
	}
}

func TestCreateTenantSchema_InvalidIDs(t *testing.T) {
	for _, id := range []string{"tenant-with-dash", "tenant.with.dot", "ten ant", "drop;table"} {
		if err := CreateTenantSchema(context.Background(), nil, id, nil); err == nil {
			t.Errorf("expected error for invalid tenant ID %q", id)
		}
	}
}
