package app

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d2c-launcher/coordinator/internal/channel/channeltest"
	"github.com/d2c-launcher/coordinator/internal/identity"
	"github.com/d2c-launcher/coordinator/internal/settings"
)

func stubProcessAlive(t *testing.T, alive func(int) bool) {
	t.Helper()
	orig := processAlive
	processAlive = alive
	t.Cleanup(func() { processAlive = orig })
}

func writeLock(t *testing.T, dir string, pid int) {
	t.Helper()
	data, err := json.Marshal(Lock{PID: pid, Hostname: "other-host"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), data, 0o644))
}

func TestAcquireLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	lock, err := AcquireLock(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), lock.PID)

	read, err := ReadLock(filepath.Join(dir, LockFileName))
	require.NoError(t, err)
	assert.Equal(t, lock.PID, read.PID)
	assert.Equal(t, lock.Hostname, read.Hostname)

	_, err = AcquireLock(dir, nil)
	assert.True(t, errors.Is(err, ErrInstanceLocked))

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireLock_LiveOwner(t *testing.T) {
	stubProcessAlive(t, func(pid int) bool { return pid == 4242 })
	dir := t.TempDir()
	writeLock(t, dir, 4242)

	_, err := AcquireLock(dir, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInstanceLocked))
	assert.Contains(t, err.Error(), "PID 4242 on other-host")
}

func TestAcquireLock_StaleOwner(t *testing.T) {
	stubProcessAlive(t, func(int) bool { return false })
	dir := t.TempDir()
	writeLock(t, dir, 4242)

	lock, err := AcquireLock(dir, nil)
	require.NoError(t, err)
	defer lock.Release()
	assert.Equal(t, os.Getpid(), lock.PID)
}

func TestAcquireLock_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), []byte("{not json"), 0o644))

	lock, err := AcquireLock(dir, nil)
	require.NoError(t, err)
	defer lock.Release()
}

func TestLock_ReleaseLeavesForeignLock(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir, nil)
	require.NoError(t, err)

	writeLock(t, dir, 4242)
	require.NoError(t, lock.Release())
	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.NoError(t, err)

	var nilLock *Lock
	assert.NoError(t, nilLock.Release())
}

func TestApp_SecondInstanceRefused(t *testing.T) {
	api := newFakeAPI(t)
	gc := channeltest.NewServer()
	defer gc.Close()

	cfg := testConfig(t, api, gc)
	build := func() *App {
		a, err := New(cfg,
			WithStore(settings.NewMemoryStore(settings.Settings{})),
			WithHelper(&fakeHelper{}),
			WithIdentityOptions(identity.WithScanner(fakeScanner{})),
		)
		require.NoError(t, err)
		return a
	}

	first := build()
	require.NoError(t, first.Start(t.Context()))

	second := build()
	err := second.Start(t.Context())
	assert.True(t, errors.Is(err, ErrInstanceLocked))

	first.Stop()
	require.NoError(t, second.Start(t.Context()))
	second.Stop()
}
