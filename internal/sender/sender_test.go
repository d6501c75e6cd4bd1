package sender

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"promolink/internal/model"
	"promolink/internal/retry"
	"promolink/internal/storage"
	"promolink/internal/wa"
)

const group = "120363000000000009@g.us"

type fakeWA struct {
	mu    sync.Mutex
	errs  []error
	calls int
	sent  []string
}

func (f *fakeWA) SendText(_ context.Context, _, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, text)
	return nil
}

func newSender(t *testing.T, ws *fakeWA) (*Sender, string) {
	t.Helper()

	st, err := storage.Open("file:" + filepath.Join(t.TempDir(), "sender.db") + "?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	inst, err := st.CreateInstance("main", "", true, 10)
	require.NoError(t, err)
	require.NoError(t, st.UpsertGroup(inst, group, "Deals"))
	yes := true
	require.NoError(t, st.SetGroupFlags(inst, group, nil, &yes))

	s := New(st, ws, zap.NewNop().Sugar())
	s.Policy = retry.Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	return s, inst
}

func TestSend_RetriesTransientErrors(t *testing.T) {
	t.Parallel()
	ws := &fakeWA{errs: []error{errors.New("websocket timeout"), nil}}
	s, inst := newSender(t, ws)

	require.NoError(t, s.Send(context.Background(), inst, group, "hello"))
	require.Equal(t, 2, ws.calls)
	require.Equal(t, []string{"hello"}, ws.sent)

	g, err := s.Store.GetGroup(inst, group)
	require.NoError(t, err)
	require.NotNil(t, g.LastSentAt)
	require.Zero(t, g.RiskScore)
}

func TestSend_FailureBumpsRiskAndDisables(t *testing.T) {
	t.Parallel()
	ws := &fakeWA{}
	s, inst := newSender(t, ws)
	s.RiskThreshold = 2

	_, err := s.Store.Enqueue(inst, group, "queued")
	require.NoError(t, err)

	forbidden := errors.New("not-authorized")
	ws.errs = []error{forbidden, forbidden}
	require.ErrorIs(t, s.Send(context.Background(), inst, group, "a"), forbidden)
	require.ErrorIs(t, s.Send(context.Background(), inst, group, "b"), forbidden)
	require.Equal(t, 2, ws.calls, "permanent errors are not retried")

	g, err := s.Store.GetGroup(inst, group)
	require.NoError(t, err)
	require.Equal(t, 2, g.RiskScore)
	require.False(t, g.Destination)

	failed, err := s.Store.ListOutbox(model.OutboxFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
}

func TestSend_NotPairedLeavesRiskAlone(t *testing.T) {
	t.Parallel()
	ws := &fakeWA{errs: []error{wa.ErrNotPaired}}
	s, inst := newSender(t, ws)

	require.ErrorIs(t, s.Send(context.Background(), inst, group, "x"), wa.ErrNotPaired)
	g, err := s.Store.GetGroup(inst, group)
	require.NoError(t, err)
	require.Zero(t, g.RiskScore)
	require.True(t, g.Destination)
}

func TestSend_EmptyText(t *testing.T) {
	t.Parallel()
	ws := &fakeWA{}
	s, inst := newSender(t, ws)

	require.Error(t, s.Send(context.Background(), inst, group, "  "))
	require.Zero(t, ws.calls)
}
