package wa

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"promolink/internal/model"
	"promolink/internal/storage"
)

var (
	ErrNotPaired     = errors.New("instance not paired")
	ErrAlreadyPaired = errors.New("instance already paired")
)

// MessageHandler receives every incoming message of an instance.
type MessageHandler func(instanceID string, evt *events.Message)

type Manager struct {
	Container *sqlstore.Container
	Store     *storage.Store

	log       *zap.SugaredLogger
	clientLog waLog.Logger

	mu       sync.Mutex
	clients  map[string]*whatsmeow.Client
	pairings map[string]*pairing
	handlers []MessageHandler
}

func NewManager(ctx context.Context, dsn string, st *storage.Store, log *zap.SugaredLogger) (*Manager, error) {
	container, err := sqlstore.New(ctx, "sqlite3", dsn, NewZapLogger(log, "Database"))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &Manager{
		Container: container,
		Store:     st,
		log:       log,
		clientLog: NewZapLogger(log, "WhatsApp"),
		clients:   make(map[string]*whatsmeow.Client),
		pairings:  make(map[string]*pairing),
	}, nil
}

// AddMessageHandler registers h for incoming messages of all instances.
func (m *Manager) AddMessageHandler(h MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// GetClient returns (or creates) the client of an instance without connecting.
// A previously paired device is restored from the session store.
func (m *Manager) GetClient(ctx context.Context, instanceID string) (*whatsmeow.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[instanceID]; ok {
		return c, nil
	}

	inst, err := m.Store.GetInstance(instanceID)
	if err != nil {
		return nil, err
	}
	var device *store.Device
	if inst.DeviceJID != "" {
		jid, err := types.ParseJID(inst.DeviceJID)
		if err != nil {
			m.log.Warnw("wa_device_jid_invalid", "instance", instanceID, "jid", inst.DeviceJID, "err", err)
		} else if device, err = m.Container.GetDevice(ctx, jid); err != nil {
			return nil, fmt.Errorf("load device: %w", err)
		}
	}
	if device == nil {
		device = m.Container.NewDevice()
	}

	client := whatsmeow.NewClient(device, m.clientLog.Sub(instanceID))
	client.AddEventHandler(m.eventHandler(instanceID, client))
	m.clients[instanceID] = client
	return client, nil
}

func (m *Manager) eventHandler(instanceID string, client *whatsmeow.Client) func(any) {
	return func(evt any) {
		switch e := evt.(type) {
		case *events.Connected:
			var msisdn *string
			if client.Store != nil && client.Store.ID != nil && client.Store.ID.User != "" {
				v := client.Store.ID.User
				msisdn = &v
				_ = m.Store.SetDeviceJID(instanceID, client.Store.ID.String())
			}
			_ = m.Store.UpdateInstanceStatus(instanceID, model.StatusOnline, "", msisdn)
			m.log.Infow("wa_connected", "instance", instanceID)
		case *events.PairSuccess:
			_ = m.Store.SetDeviceJID(instanceID, e.ID.String())
			m.finishPairing(instanceID)
			m.log.Infow("wa_pair_success", "instance", instanceID, "jid", e.ID.String())
		case *events.LoggedOut:
			_ = m.Store.UpdateInstanceStatus(instanceID, model.StatusLoggedOut, e.Reason.String(), nil)
			_ = m.Store.SetDeviceJID(instanceID, "")
			m.log.Warnw("wa_logged_out", "instance", instanceID, "reason", e.Reason.String())
		case *events.StreamReplaced:
			_ = m.Store.UpdateInstanceStatus(instanceID, model.StatusReplaced, "", nil)
		case *events.Disconnected:
			m.log.Infow("wa_disconnected", "instance", instanceID)
		case *events.Message:
			m.mu.Lock()
			hs := append([]MessageHandler(nil), m.handlers...)
			m.mu.Unlock()
			for _, h := range hs {
				go h(instanceID, e)
			}
		}
	}
}

// pairing tracks the latest QR code of an in-flight QR login.
type pairing struct {
	mu      sync.Mutex
	code    string
	err     error
	updated chan struct{}
}

func (p *pairing) set(code string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.code, p.err = code, err
	close(p.updated)
	p.updated = make(chan struct{})
}

func (p *pairing) snapshot() (string, <-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, p.updated, p.err
}

// wait blocks until a QR code is available or the login failed.
func (p *pairing) wait(ctx context.Context) (string, error) {
	for {
		code, updated, err := p.snapshot()
		if err != nil {
			return "", err
		}
		if code != "" {
			return code, nil
		}
		select {
		case <-updated:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (m *Manager) finishPairing(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pairings, instanceID)
}

// StartPairing connects an unpaired instance and returns the current QR
// code as PNG plus its raw value. Repeated calls reuse the same login and
// return the freshest code.
func (m *Manager) StartPairing(ctx context.Context, instanceID string) ([]byte, string, error) {
	client, err := m.GetClient(ctx, instanceID)
	if err != nil {
		return nil, "", err
	}
	if client.Store.ID != nil {
		return nil, "", ErrAlreadyPaired
	}

	p, err := m.ensurePairing(instanceID, client)
	if err != nil {
		return nil, "", err
	}

	code, err := p.wait(ctx)
	if err != nil {
		m.log.Warnw("wa_pair_qr_wait_failed", "instance", instanceID, "err", err)
		return nil, "", err
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return nil, "", err
	}
	return png, code, nil
}

func (m *Manager) ensurePairing(instanceID string, client *whatsmeow.Client) (*pairing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pairings[instanceID]; ok {
		return p, nil
	}

	// The QR websocket must outlive the HTTP request that started it.
	qrChan, err := client.GetQRChannel(context.Background())
	if err != nil {
		return nil, fmt.Errorf("qr channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	p := &pairing{updated: make(chan struct{})}
	m.pairings[instanceID] = p
	_ = m.Store.UpdateInstanceStatus(instanceID, model.StatusPairing, "", nil)
	m.log.Infow("wa_pair_qr_started", "instance", instanceID)

	go func() {
		for item := range qrChan {
			switch item.Event {
			case whatsmeow.QRChannelEventCode:
				p.set(item.Code, nil)
			case whatsmeow.QRChannelSuccess.Event:
				m.finishPairing(instanceID)
				return
			default:
				perr := fmt.Errorf("pairing %s", item.Event)
				if item.Error != nil {
					perr = fmt.Errorf("pairing %s: %w", item.Event, item.Error)
				}
				p.set("", perr)
				m.finishPairing(instanceID)
				_ = m.Store.UpdateInstanceStatus(instanceID, model.StatusError, perr.Error(), nil)
				m.log.Warnw("wa_pair_qr_ended", "instance", instanceID, "event", item.Event)
				return
			}
		}
		m.finishPairing(instanceID)
	}()
	return p, nil
}

// RequestPairingCode links the instance by phone number instead of QR.
func (m *Manager) RequestPairingCode(ctx context.Context, instanceID, msisdn string) (string, error) {
	if msisdn == "" {
		return "", fmt.Errorf("msisdn required")
	}
	client, err := m.GetClient(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if client.Store.ID != nil {
		return "", ErrAlreadyPaired
	}
	// PairPhone is only accepted once the first QR code has been issued.
	p, err := m.ensurePairing(instanceID, client)
	if err != nil {
		return "", err
	}
	if _, err := p.wait(ctx); err != nil {
		return "", err
	}

	code, err := client.PairPhone(ctx, msisdn, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		m.log.Errorw("wa_pair_phone_failed", "instance", instanceID, "err", err)
		return "", err
	}
	_ = m.Store.UpdateInstanceStatus(instanceID, model.StatusPairing, "", &msisdn)
	return code, nil
}

// ConnectIfPaired connects a paired instance; already-connected clients are left alone.
func (m *Manager) ConnectIfPaired(ctx context.Context, instanceID string) error {
	client, err := m.GetClient(ctx, instanceID)
	if err != nil {
		return err
	}
	if client.Store.ID == nil {
		return ErrNotPaired
	}
	if client.IsConnected() {
		return nil
	}
	return client.Connect()
}

// ConnectAll reconnects every enabled, paired instance. Failures are logged.
func (m *Manager) ConnectAll(ctx context.Context) {
	list, err := m.Store.ListInstances()
	if err != nil {
		m.log.Errorw("wa_connect_all_list_failed", "err", err)
		return
	}
	for _, inst := range list {
		if !inst.Enabled || inst.DeviceJID == "" {
			continue
		}
		if err := m.ConnectIfPaired(ctx, inst.ID); err != nil {
			m.log.Warnw("wa_connect_failed", "instance", inst.ID, "err", err)
			_ = m.Store.UpdateInstanceStatus(inst.ID, model.StatusError, err.Error(), nil)
		}
	}
}

// Logout unlinks the device from WhatsApp and forgets the client.
func (m *Manager) Logout(ctx context.Context, instanceID string) error {
	client, err := m.GetClient(ctx, instanceID)
	if err != nil {
		return err
	}
	if client.Store.ID == nil {
		m.DropInstance(instanceID)
		return ErrNotPaired
	}
	if err := client.Logout(ctx); err != nil {
		return err
	}
	_ = m.Store.SetDeviceJID(instanceID, "")
	_ = m.Store.UpdateInstanceStatus(instanceID, model.StatusLoggedOut, "", nil)
	m.DropInstance(instanceID)
	return nil
}

// DropInstance disconnects and forgets the cached client.
func (m *Manager) DropInstance(instanceID string) {
	m.mu.Lock()
	c, ok := m.clients[instanceID]
	delete(m.clients, instanceID)
	delete(m.pairings, instanceID)
	m.mu.Unlock()
	if ok {
		c.Disconnect()
	}
}

// Close disconnects every client.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.DropInstance(id)
	}
}

// SendText sends a plain text message to a group JID string like "12345-67890@g.us".
func (m *Manager) SendText(ctx context.Context, instanceID, groupJID, text string) error {
	c, err := m.GetClient(ctx, instanceID)
	if err != nil {
		return err
	}
	if c.Store == nil || c.Store.ID == nil {
		return fmt.Errorf("%w: %s", ErrNotPaired, instanceID)
	}
	if !c.IsConnected() {
		if err := c.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}
	jid, err := types.ParseJID(groupJID)
	if err != nil {
		return fmt.Errorf("parse JID: %w", err)
	}
	_, err = c.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	return err
}

// FetchAndSyncGroups obtains joined groups via WhatsApp and persists them.
func (m *Manager) FetchAndSyncGroups(ctx context.Context, instanceID string) (int, error) {
	client, err := m.GetClient(ctx, instanceID)
	if err != nil {
		return 0, err
	}
	if client.Store == nil || client.Store.ID == nil {
		return 0, ErrNotPaired
	}
	groups, err := client.GetJoinedGroups(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, info := range groups {
		gid := info.JID.String()
		if info.JID.IsEmpty() {
			continue
		}
		if err := m.Store.UpsertGroup(instanceID, gid, info.Name); err != nil {
			return count, err
		}
		count++
	}
	m.log.Infow("wa_groups_synced", "instance", instanceID, "count", count)
	return count, nil
}
