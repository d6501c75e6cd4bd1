// Package dispatcher drains the outbox at a human pace: one post per tick,
// within the instance's daily limit, the per-group interval and the
// configured send windows, with a random pause after every post.
package dispatcher

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"promolink/internal/retry"
	"promolink/internal/storage"
)

const defaultDailyLimit = 100

// Poster is satisfied by *sender.Sender.
type Poster interface {
	Send(ctx context.Context, instanceID, groupJID, text string) error
}

// Connector is satisfied by *wa.Manager.
type Connector interface {
	ConnectIfPaired(ctx context.Context, instanceID string) error
}

type Options struct {
	Tick          time.Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration
	GroupInterval time.Duration
	SendTimeout   time.Duration
	Windows       []Window
	Location      *time.Location
}

type Dispatcher struct {
	Store  *storage.Store
	Sender Poster
	// Conn is optional; when set, instances are connected before sending.
	Conn Connector

	opts Options
	log  *zap.SugaredLogger
	now  func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(store *storage.Store, snd Poster, conn Connector, opts Options, log *zap.SugaredLogger) *Dispatcher {
	if opts.Tick <= 0 {
		opts.Tick = 20 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 90 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Dispatcher{
		Store:  store,
		Sender: snd,
		Conn:   conn,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
}

// Start runs the loop in a goroutine until Stop or ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.loop(ctx, d.done)
	d.log.Infow("dispatcher_started", "tick", d.opts.Tick, "windows", len(d.opts.Windows))
}

// Stop cancels the loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.log.Infow("dispatcher_stopped")
}

func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	tick := time.NewTicker(d.opts.Tick)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if !inWindow(d.opts.Windows, d.now().In(d.opts.Location)) {
				continue
			}
			sent, err := d.ProcessOne(ctx)
			if err != nil {
				d.log.Errorw("dispatch_failed", "err", err)
				continue
			}
			if sent {
				_ = retry.Sleep(ctx, d.opts.MinDelay, d.opts.MaxDelay)
			}
		}
	}
}

// startOfDay is local midnight in the configured location.
func (d *Dispatcher) startOfDay() time.Time {
	t := d.now().In(d.opts.Location)
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, d.opts.Location)
}

// ProcessOne attempts at most one pending post and reports whether it did.
// Instances are visited in random order so none starves the others.
func (d *Dispatcher) ProcessOne(ctx context.Context) (bool, error) {
	insts, err := d.Store.ListInstances()
	if err != nil {
		return false, err
	}
	rand.Shuffle(len(insts), func(i, j int) { insts[i], insts[j] = insts[j], insts[i] })

	for _, inst := range insts {
		if !inst.Enabled {
			continue
		}
		limit := inst.DailyLimit
		if limit <= 0 {
			limit = defaultDailyLimit
		}
		sentToday, err := d.Store.CountSentSince(inst.ID, d.startOfDay())
		if err != nil {
			return false, err
		}
		if int(sentToday) >= limit {
			continue
		}

		item, err := d.Store.NextPending(inst.ID, d.opts.GroupInterval)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}

		if d.Conn != nil {
			if err := d.Conn.ConnectIfPaired(ctx, inst.ID); err != nil {
				d.log.Debugw("dispatch_instance_unavailable", "instance", inst.ID, "err", err)
				continue
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		err = d.Sender.Send(sendCtx, inst.ID, item.GroupID, item.Body)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				// Shutting down; the post stays pending.
				return true, nil
			}
			if merr := d.Store.MarkOutboxFailed(item.ID, err.Error()); merr != nil {
				return true, merr
			}
			d.log.Warnw("post_failed", "instance", inst.ID, "group", item.GroupID, "outbox_id", item.ID, "err", err)
			return true, nil
		}
		if err := d.Store.MarkOutboxSent(item.ID); err != nil {
			return true, err
		}
		d.log.Infow("post_sent", "instance", inst.ID, "group", item.GroupID, "outbox_id", item.ID,
			"sent_today", sentToday+1, "daily_limit", limit)
		return true, nil
	}
	return false, nil
}
