package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shimantoislam/flash-auth/internal/license"
	"github.com/shimantoislam/flash-auth/internal/services"
)

var handlerTestNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type verifyFixture struct {
	handler *VerifyHandler
	service services.LicenseService
}

func newVerifyFixture(t *testing.T) *verifyFixture {
	t.Helper()
	store, err := license.Open(filepath.Join(t.TempDir(), "data.json"), nil)
	require.NoError(t, err)
	engine := license.NewEngine(store, license.FixedClock{T: handlerTestNow}, nil)
	svc, err := services.NewLicenseService(engine, nil, slog.Default())
	require.NoError(t, err)
	return &verifyFixture{
		handler: NewVerifyHandler(svc, slog.Default()),
		service: svc,
	}
}

func (f *verifyFixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeVerify(t *testing.T, rec *httptest.ResponseRecorder) (status, message string) {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["status"], resp["message"]
}

func (f *verifyFixture) createKey(t *testing.T, username, expiry string, limit int) string {
	t.Helper()
	summary, err := f.service.CreateLicense(context.Background(), username, expiry, limit)
	require.NoError(t, err)
	return summary.Key
}

func TestVerifyEndpointFullScenario(t *testing.T) {
	f := newVerifyFixture(t)
	key := f.createKey(t, "alice", "2030-01-01", 2)

	steps := []struct {
		hwid, ip    string
		wantStatus  string
		wantMessage string
		wantHTTP    int
	}{
		{"hw1", "1.1.1.1", "success", "Device registered", http.StatusOK},
		{"hw2", "2.2.2.2", "success", "Device registered", http.StatusOK},
		{"hw3", "3.3.3.3", "error", "Device limit reached", http.StatusForbidden},
		{"hw1", "1.1.1.1", "success", "Device already registered", http.StatusOK},
	}
	for i, step := range steps {
		body := fmt.Sprintf(`{"license_key":%q,"hwid":%q,"ip":%q}`, key, step.hwid, step.ip)
		rec := f.post(t, body)
		status, message := decodeVerify(t, rec)
		assert.Equal(t, step.wantHTTP, rec.Code, "step %d", i)
		assert.Equal(t, step.wantStatus, status, "step %d", i)
		assert.Equal(t, step.wantMessage, message, "step %d", i)
	}
}

func TestVerifyEndpointInvalidKey(t *testing.T) {
	f := newVerifyFixture(t)

	rec := f.post(t, `{"license_key":"not-a-real-key","hwid":"hw1","ip":"1.1.1.1"}`)
	status, message := decodeVerify(t, rec)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", status)
	assert.Equal(t, "Invalid license key", message)
}

func TestVerifyEndpointExpired(t *testing.T) {
	f := newVerifyFixture(t)
	yesterday := license.DateOf(handlerTestNow.AddDate(0, 0, -1)).String()
	key := f.createKey(t, "alice", yesterday, 2)

	rec := f.post(t, fmt.Sprintf(`{"license_key":%q,"hwid":"hw1","ip":"1.1.1.1"}`, key))
	status, message := decodeVerify(t, rec)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "error", status)
	assert.Equal(t, "License expired", message)
}

func TestVerifyEndpointMissingParameters(t *testing.T) {
	f := newVerifyFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "not json", body: "license_key=abc"},
		{name: "empty object", body: "{}"},
		{name: "missing hwid", body: `{"license_key":"k","ip":"1.1.1.1"}`},
		{name: "missing ip", body: `{"license_key":"k","hwid":"hw1"}`},
		{name: "missing key", body: `{"hwid":"hw1","ip":"1.1.1.1"}`},
		{name: "empty values", body: `{"license_key":"","hwid":"","ip":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.post(t, tt.body)
			status, message := decodeVerify(t, rec)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "error", status)
			assert.Equal(t, "Missing parameters", message)
		})
	}
}

func TestVerifyEndpointRevokedKey(t *testing.T) {
	f := newVerifyFixture(t)
	key := f.createKey(t, "alice", "2030-01-01", 2)

	rec := f.post(t, fmt.Sprintf(`{"license_key":%q,"hwid":"hw1","ip":"1.1.1.1"}`, key))
	_, message := decodeVerify(t, rec)
	require.Equal(t, "Device registered", message)

	require.NoError(t, f.service.RevokeLicense(context.Background(), key))

	rec = f.post(t, fmt.Sprintf(`{"license_key":%q,"hwid":"hw1","ip":"1.1.1.1"}`, key))
	status, message := decodeVerify(t, rec)
	assert.Equal(t, "error", status)
	assert.Equal(t, "Invalid license key", message)
}
