package http

import (
	"bytes"
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
	"golang.org/x/crypto/bcrypt"

	"github.com/shimantoislam/flash-auth/internal/config"
	"github.com/shimantoislam/flash-auth/internal/license"
	"github.com/shimantoislam/flash-auth/internal/middleware"
	"github.com/shimantoislam/flash-auth/internal/services"
)

type adminFixture struct {
	router http.Handler
	token  string
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	store, err := license.Open(filepath.Join(t.TempDir(), "data.json"), nil)
	require.NoError(t, err)
	engine := license.NewEngine(store, license.FixedClock{T: handlerTestNow}, nil)
	svc, err := services.NewLicenseService(engine, nil, slog.Default())
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	auth, err := middleware.NewAdminAuth(config.AdminConfig{
		PasswordHash: string(hash),
		TokenSecret:  "test-secret",
		SessionTTL:   30 * time.Minute,
	}, slog.Default())
	require.NoError(t, err)

	handler := NewAdminHandler(svc, auth, slog.Default())
	f := &adminFixture{router: handler.Routes()}

	rec := f.do(t, http.MethodPost, "/login", `{"password":"hunter2"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	f.token = login.Token
	return f
}

func (f *adminFixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newAdminFixture(t)

	rec := f.do(t, http.MethodPost, "/login", `{"password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/login", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newAdminFixture(t)

	assert.Equal(t, http.StatusUnauthorized,
		f.do(t, http.MethodGet, "/licenses", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		f.do(t, http.MethodPost, "/licenses", `{"username":"a","expiry":"2030-01-01","device_limit":1}`, "bogus").Code)
	assert.Equal(t, http.StatusUnauthorized,
		f.do(t, http.MethodDelete, "/licenses/some-key", "", "").Code)
}

func TestCreateListRevokeRoundTrip(t *testing.T) {
	f := newAdminFixture(t)

	rec := f.do(t, http.MethodPost, "/licenses",
		`{"username":"alice","expiry":"2030-01-01","device_limit":2}`, f.token)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created LicensePayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Key)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, 2, created.DeviceLimit)
	assert.False(t, created.Active)
	assert.Empty(t, created.Devices)
	assert.Positive(t, created.RemainingDays)

	rec = f.do(t, http.MethodGet, "/licenses", "", f.token)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed ListLicensesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Equal(t, 1, listed.Count)
	assert.Equal(t, created.Key, listed.Licenses[0].Key)

	rec = f.do(t, http.MethodDelete, "/licenses/"+created.Key, "", f.token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Idempotent: revoking again still succeeds.
	rec = f.do(t, http.MethodDelete, "/licenses/"+created.Key, "", f.token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/licenses", "", f.token)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, 0, listed.Count)
}

func TestCreateLicenseValidation(t *testing.T) {
	f := newAdminFixture(t)

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "missing username", body: `{"expiry":"2030-01-01","device_limit":1}`, wantField: "username"},
		{name: "missing expiry", body: `{"username":"alice","device_limit":1}`, wantField: "expiry"},
		{name: "bad expiry", body: `{"username":"alice","expiry":"01/01/2030","device_limit":1}`, wantField: "expiry"},
		{name: "zero limit", body: `{"username":"alice","expiry":"2030-01-01","device_limit":0}`, wantField: "device_limit"},
		{name: "negative limit", body: `{"username":"alice","expiry":"2030-01-01","device_limit":-1}`, wantField: "device_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/licenses", tt.body, f.token)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp struct {
				Details struct {
					Field string `json:"field"`
				} `json:"details"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantField, resp.Details.Field)
		})
	}

	rec := f.do(t, http.MethodGet, "/licenses", "", f.token)
	var listed ListLicensesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, 0, listed.Count, "rejected creates must not leave records")
}

func TestListRemainingDaysDerived(t *testing.T) {
	f := newAdminFixture(t)

	in10 := license.DateOf(handlerTestNow.AddDate(0, 0, 10)).String()
	past := license.DateOf(handlerTestNow.AddDate(0, 0, -5)).String()

	for _, expiry := range []string{in10, past} {
		rec := f.do(t, http.MethodPost, "/licenses",
			fmt.Sprintf(`{"username":"u","expiry":%q,"device_limit":1}`, expiry), f.token)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/licenses", "", f.token)
	var listed ListLicensesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Equal(t, 2, listed.Count)

	days := map[string]int{}
	for _, l := range listed.Licenses {
		days[l.Expiry.String()] = l.RemainingDays
	}
	assert.Equal(t, 10, days[in10])
	assert.Equal(t, 0, days[past], "expired licenses clamp to zero")
}
