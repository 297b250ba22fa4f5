package lock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLocker(t *testing.T) (*RedisLocker, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return &RedisLocker{ttl: 30 * time.Second, log: zap.New(core)}, logs
}

func TestReleaseLogsExpiredToken(t *testing.T) {
	l, logs := observedLocker(t)

	l.reportRelease("boq:42", 45*time.Second, 0, nil)

	entries := logs.FilterMessage("lock expired before release").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "boq:42", fields["key"])
	assert.Equal(t, 45*time.Second, fields["held"])
	assert.Equal(t, 30*time.Second, fields["ttl"])
}

func TestReleaseOfHeldTokenIsQuiet(t *testing.T) {
	l, logs := observedLocker(t)

	l.reportRelease("boq:42", time.Second, 1, nil)

	assert.Zero(t, logs.Len())
}

func TestReleaseErrorIsLogged(t *testing.T) {
	l, logs := observedLocker(t)

	l.reportRelease("boq:42", time.Second, 0, errors.New("connection reset"))

	require.Equal(t, 1, logs.FilterMessage("failed to release lock").Len())
	assert.Zero(t, logs.FilterMessage("lock expired before release").Len())
}
