package tenantdb_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/pkg/config"
	"github.com/tallyhq/tally/pkg/tenantdb"
)

func TestConfigDefaults(t *testing.T) {
	var cfg tenantdb.Config
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, 50, cfg.MaxOpenTenantConnections)
	assert.Equal(t, 10*time.Minute, cfg.IdleTTL)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 3*time.Second, cfg.AcquireTimeout)
	assert.Equal(t, 30*time.Second, cfg.EvictionSweepInterval)
	assert.False(t, cfg.WaitOnCapacity)
}

func TestConnectError(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	err := &tenantdb.ConnectError{TenantID: "acme", Reason: tenantdb.ReasonRefused, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.True(t, tenantdb.IsConnectError(err))
	assert.Contains(t, err.Error(), "acme")
	assert.Contains(t, err.Error(), "refused")

	wrapped := errors.Join(errors.New("outer"), err)
	assert.True(t, tenantdb.IsConnectError(wrapped))
	assert.False(t, tenantdb.IsConnectError(errors.New("plain")))
}
