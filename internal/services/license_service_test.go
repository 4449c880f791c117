package services

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shimantoislam/flash-auth/internal/license"
)

func newTestService(t *testing.T) LicenseService {
	t.Helper()
	store, err := license.Open(filepath.Join(t.TempDir(), "data.json"), nil)
	require.NoError(t, err)
	clock := license.FixedClock{T: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)}
	engine := license.NewEngine(store, clock, nil)
	svc, err := NewLicenseService(engine, nil, slog.Default())
	require.NoError(t, err)
	return svc
}

func TestCreateListRevokeFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateLicense(ctx, "alice", "2030-01-01", 2)
	require.NoError(t, err)
	assert.NotEmpty(t, created.Key)
	assert.Equal(t, "alice", created.Username)
	assert.False(t, created.Active)

	all := svc.ListLicenses(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, created.Key, all[0].Key)

	require.NoError(t, svc.RevokeLicense(ctx, created.Key))
	assert.Empty(t, svc.ListLicenses(ctx))
	require.NoError(t, svc.RevokeLicense(ctx, created.Key), "revoke stays idempotent through the service")
}

func TestCreateLicenseValidationPassesThrough(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateLicense(context.Background(), "", "2030-01-01", 1)
	var invalid *license.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "username", invalid.Field)
}

func TestVerifyDeviceScenario(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateLicense(ctx, "alice", "2030-01-01", 2)
	require.NoError(t, err)
	key := created.Key

	steps := []struct {
		hwid, addr string
		want       license.Decision
	}{
		{"hw1", "1.1.1.1", license.DecisionRegistered},
		{"hw2", "2.2.2.2", license.DecisionRegistered},
		{"hw3", "3.3.3.3", license.DecisionDeviceLimitReached},
		{"hw1", "1.1.1.1", license.DecisionAlreadyRegistered},
	}
	for i, step := range steps {
		decision, err := svc.VerifyDevice(ctx, key, step.hwid, step.addr)
		require.NoError(t, err)
		assert.Equal(t, step.want, decision, "step %d", i)
	}

	decision, err := svc.VerifyDevice(ctx, "not-a-real-key", "hw1", "1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, license.DecisionInvalidKey, decision)
}
