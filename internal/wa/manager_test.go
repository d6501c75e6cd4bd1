package wa

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"promolink/internal/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "wa.db") + "?_foreign_keys=on"
	st, err := storage.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m, err := NewManager(context.Background(), dsn, st, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestManager_UnpairedInstance(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.GetClient(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	id, err := m.Store.CreateInstance("main", "", true, 10)
	require.NoError(t, err)

	c1, err := m.GetClient(ctx, id)
	require.NoError(t, err)
	require.Nil(t, c1.Store.ID)
	c2, err := m.GetClient(ctx, id)
	require.NoError(t, err)
	require.Same(t, c1, c2)

	require.ErrorIs(t, m.ConnectIfPaired(ctx, id), ErrNotPaired)
	require.ErrorIs(t, m.SendText(ctx, id, "120363000000000001@g.us", "hi"), ErrNotPaired)
	_, err = m.FetchAndSyncGroups(ctx, id)
	require.ErrorIs(t, err, ErrNotPaired)
	require.ErrorIs(t, m.Logout(ctx, id), ErrNotPaired)

	c3, err := m.GetClient(ctx, id)
	require.NoError(t, err)
	require.NotSame(t, c1, c3, "logout drops the cached client")
}

func TestPairing_Wait(t *testing.T) {
	p := &pairing{updated: make(chan struct{})}
	go func() {
		time.Sleep(5 * time.Millisecond)
		p.set("2@first", nil)
	}()
	code, err := p.wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2@first", code)

	failed := &pairing{updated: make(chan struct{})}
	failed.set("", errors.New("pairing timeout"))
	_, err = failed.wait(context.Background())
	require.EqualError(t, err, "pairing timeout")

	idle := &pairing{updated: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = idle.wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
