package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kubilitics/kubilitics-backend/internal/auth"
)

func TestAuditLogPassesThroughOnPost(t *testing.T) {
	handler := AuditLog()(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/rules/reload", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{UserID: "user-123", Username: "testuser", Role: auth.RoleAdmin}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditLogPassesThroughOnDelete(t *testing.T) {
	handler := AuditLog()(okHandler())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/history", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{UserID: "user-123", Username: "testuser", Role: auth.RoleAdmin}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditLogSkipsGET(t *testing.T) {
	called := false
	handler := AuditLog()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/history", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditLogSkipsAuthRoutes(t *testing.T) {
	called := false
	handler := AuditLog()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditLogCapturesFailureStatus(t *testing.T) {
	handler := AuditLog()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/history", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditLogWithoutClaimsDoesNotPanic(t *testing.T) {
	handler := AuditLog()(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/rules/reload", nil)
	rec := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, req)
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
