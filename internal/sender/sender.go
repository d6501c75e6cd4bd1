// Package sender delivers posts to WhatsApp groups and tracks per-group risk.
package sender

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"promolink/internal/retry"
	"promolink/internal/storage"
	"promolink/internal/wa"
)

const DefaultRiskThreshold = 3

// TextSender is satisfied by *wa.Manager.
type TextSender interface {
	SendText(ctx context.Context, instanceID, groupJID, text string) error
}

type Sender struct {
	Store         *storage.Store
	WA            TextSender
	Policy        retry.Policy
	RiskThreshold int

	log *zap.SugaredLogger
}

func New(store *storage.Store, ws TextSender, log *zap.SugaredLogger) *Sender {
	return &Sender{
		Store:         store,
		WA:            ws,
		Policy:        retry.Default,
		RiskThreshold: DefaultRiskThreshold,
		log:           log,
	}
}

// Send delivers text to a group JID string like "12345-67890@g.us" with
// retry/backoff. A delivery that still fails bumps the group's risk score;
// at the threshold the group stops being a destination and everything still
// queued for it is failed.
func (s *Sender) Send(ctx context.Context, instanceID, groupJID, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty message")
	}
	attempts, err := s.Policy.Do(ctx, func() error {
		return s.WA.SendText(ctx, instanceID, groupJID, text)
	})
	if err != nil {
		s.log.Warnw("send_failed", "instance", instanceID, "group", groupJID, "attempts", attempts, "err", err)
		if ctx.Err() == nil && !errors.Is(err, wa.ErrNotPaired) {
			s.bumpRisk(instanceID, groupJID)
		}
		return err
	}

	if err := s.Store.MarkGroupSent(instanceID, groupJID); err != nil {
		s.log.Warnw("mark_group_sent_failed", "instance", instanceID, "group", groupJID, "err", err)
	}
	s.log.Infow("send_ok", "instance", instanceID, "group", groupJID, "attempts", attempts)
	return nil
}

func (s *Sender) bumpRisk(instanceID, groupJID string) {
	disabled, err := s.Store.BumpRisk(instanceID, groupJID, s.RiskThreshold)
	if err != nil {
		s.log.Errorw("bump_risk_failed", "instance", instanceID, "group", groupJID, "err", err)
		return
	}
	if !disabled {
		return
	}
	n, err := s.Store.FailPendingForGroup(instanceID, groupJID, "destination disabled after repeated failures")
	if err != nil {
		s.log.Errorw("fail_pending_failed", "instance", instanceID, "group", groupJID, "err", err)
	}
	s.log.Warnw("destination_disabled", "instance", instanceID, "group", groupJID, "dropped", n)
}
