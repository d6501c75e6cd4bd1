// Package relay reposts marketplace links seen in monitored groups to the
// destination groups of the same instance, with affiliate links swapped in.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"promolink/internal/converter"
	"promolink/internal/linkx"
	"promolink/internal/model"
	"promolink/internal/storage"
	"promolink/internal/tmpl"
	"promolink/internal/wa"
)

// DefaultWindow is how long a relayed link is suppressed per instance.
const DefaultWindow = 6 * time.Hour

// Converter is the part of converter.Client the relay depends on.
type Converter interface {
	Extractor() *linkx.Extractor
	ConvertTextFunc(ctx context.Context, text string, keep func(link string) bool) converter.TextResult
}

// Outcome describes what happened to one message.
type Outcome struct {
	Skipped  SkipReason         `json:"skipped,omitempty"`
	Links    []converter.Result `json:"links,omitempty"`
	Enqueued int                `json:"enqueued"`
}

type Relay struct {
	Store   *storage.Store
	Conv    Converter
	Window  time.Duration
	Timeout time.Duration

	log *zap.SugaredLogger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(st *storage.Store, conv Converter, log *zap.SugaredLogger) *Relay {
	return &Relay{
		Store:    st,
		Conv:     conv,
		Window:   DefaultWindow,
		Timeout:  2 * time.Minute,
		log:      log,
		inflight: make(map[string]struct{}),
	}
}

// HandleMessage is registered with wa.Manager.AddMessageHandler.
func (r *Relay) HandleMessage(instanceID string, evt *events.Message) {
	if reason := checkEvent(evt); reason != "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	out, err := r.HandleText(ctx, instanceID, evt.Info.Chat.String(), wa.MessageText(evt.Message))
	if err != nil {
		r.log.Errorw("relay_failed", "instance", instanceID, "chat", evt.Info.Chat.String(), "err", err)
		return
	}
	if out.Skipped == "" {
		r.log.Infow("relay_enqueued", "instance", instanceID, "chat", evt.Info.Chat.String(),
			"links", len(out.Links), "posts", out.Enqueued)
	}
}

// HandleText relays text posted in sourceGroup of an instance.
func (r *Relay) HandleText(ctx context.Context, instanceID, sourceGroup, text string) (Outcome, error) {
	if text == "" {
		return Outcome{Skipped: SkipEmpty}, nil
	}
	monitored, err := r.Store.IsMonitored(instanceID, sourceGroup)
	if err != nil {
		return Outcome{}, err
	}
	if !monitored {
		return Outcome{Skipped: SkipNotMonitored}, nil
	}

	found := r.Conv.Extractor().Extract(text)
	if len(found) == 0 {
		return Outcome{Skipped: SkipNoLinks}, nil
	}

	fresh, err := r.claim(instanceID, sourceGroup, found)
	if err != nil {
		return Outcome{}, err
	}
	defer r.release(instanceID, fresh)
	if len(fresh) == 0 {
		r.log.Debugw("relay_duplicate", "instance", instanceID, "group", sourceGroup, "links", len(found))
		return Outcome{Skipped: SkipDuplicate}, nil
	}

	// Links relayed within the window stay as posted.
	res := r.Conv.ConvertTextFunc(ctx, text, func(u string) bool {
		_, ok := fresh[u]
		return ok
	})
	out := Outcome{Links: res.Links}
	for _, l := range res.Links {
		r.logConversion(instanceID, sourceGroup, l, conversionStatus(l))
	}

	converted := res.Converted()
	if len(converted) == 0 {
		out.Skipped = SkipNotConverted
		return out, nil
	}

	targets, err := r.Store.ListDestinations(instanceID)
	if err != nil {
		return out, err
	}
	body, err := r.templateBody()
	if err != nil {
		return out, err
	}

	data := tmpl.Data{Message: res.Text}
	for _, l := range converted {
		data.Links = append(data.Links, l.Affiliate)
		data.Originals = append(data.Originals, l.Original)
	}
	for _, g := range targets {
		if g.ID == sourceGroup {
			continue
		}
		data.GroupName = g.Name
		if _, err := r.Store.Enqueue(instanceID, g.ID, tmpl.Render(body, data)); err != nil {
			return out, err
		}
		out.Enqueued++
	}
	if out.Enqueued == 0 {
		out.Skipped = SkipNoTargets
	}
	return out, nil
}

// claim returns the links that were neither relayed within the window nor
// are being relayed right now, and marks them in flight.
func (r *Relay) claim(instanceID, sourceGroup string, links []string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fresh := make(map[string]struct{}, len(links))
	for _, u := range links {
		if _, dup := fresh[u]; dup {
			continue
		}
		key := instanceID + "|" + u
		if _, busy := r.inflight[key]; busy {
			continue
		}
		seen, err := r.Store.RecentlyRelayed(instanceID, u, r.Window)
		if err != nil {
			for k := range fresh {
				delete(r.inflight, instanceID+"|"+k)
			}
			return nil, err
		}
		if seen {
			r.logConversion(instanceID, sourceGroup, converter.Result{Original: u, Marketplace: r.marketplace(u)}, model.ConversionDuplicate)
			continue
		}
		fresh[u] = struct{}{}
		r.inflight[key] = struct{}{}
	}
	return fresh, nil
}

func (r *Relay) release(instanceID string, links map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for u := range links {
		delete(r.inflight, instanceID+"|"+u)
	}
}

func (r *Relay) marketplace(u string) string {
	m, _ := r.Conv.Extractor().Marketplace(u)
	return m
}

func conversionStatus(res converter.Result) string {
	switch {
	case res.Err != nil || res.Affiliate == "":
		return model.ConversionFailed
	case res.Cached:
		return model.ConversionCached
	}
	return model.ConversionConverted
}

func (r *Relay) logConversion(instanceID, sourceGroup string, res converter.Result, status string) {
	c := model.Conversion{
		InstanceID:   instanceID,
		SourceGroup:  sourceGroup,
		Marketplace:  res.Marketplace,
		OriginalURL:  res.Original,
		AffiliateURL: res.Affiliate,
		Status:       status,
		Error:        res.Error,
	}
	if _, err := r.Store.LogConversion(c); err != nil {
		r.log.Warnw("conversion_log_failed", "instance", instanceID, "url", res.Original, "err", err)
	}
}

// templateBody returns the active template body, or "" to post the message as is.
func (r *Relay) templateBody() (string, error) {
	t, err := r.Store.ActiveTemplate()
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return t.Body, nil
}
