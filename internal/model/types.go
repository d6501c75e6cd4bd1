package model

import "time"

// Instance status constants for lifecycle tracking.
const (
	StatusInactive  = "inactive"
	StatusPairing   = "pairing"
	StatusOnline    = "online"
	StatusLoggedOut = "logged_out"
	StatusReplaced  = "replaced"
	StatusError     = "error"
)

// Conversion statuses.
const (
	ConversionConverted = "converted"
	ConversionFailed    = "failed"
	ConversionCached    = "cached"
	ConversionDuplicate = "duplicate"
)

// Outbox statuses.
const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// Instance is one linked WhatsApp device.
type Instance struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Msisdn     string    `json:"msisdn"`
	DeviceJID  string    `json:"device_jid,omitempty"`
	Enabled    bool      `json:"enabled"`
	DailyLimit int       `json:"daily_limit"`
	Status     string    `json:"status"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Group is a WhatsApp group seen by an instance. Monitored groups are read
// for product links; destination groups receive the converted posts.
type Group struct {
	ID          string     `json:"id"` // JID as string
	InstanceID  string     `json:"instance_id"`
	Name        string     `json:"name"`
	Monitored   bool       `json:"monitored"`
	Destination bool       `json:"destination"`
	LastSentAt  *time.Time `json:"last_sent_at,omitempty"`
	RiskScore   int        `json:"risk_score"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Template is the message layout used when reposting converted links.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	Enabled   bool      `json:"enabled"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Conversion records one attempt to turn a product link into an affiliate link.
type Conversion struct {
	ID           int64     `json:"id"`
	TS           time.Time `json:"ts"`
	InstanceID   string    `json:"instance_id,omitempty"`
	SourceGroup  string    `json:"source_group,omitempty"`
	Marketplace  string    `json:"marketplace"`
	OriginalURL  string    `json:"original_url"`
	AffiliateURL string    `json:"affiliate_url,omitempty"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
}

// OutboxItem is a rendered post waiting to be delivered to a group.
type OutboxItem struct {
	ID         int64      `json:"id"`
	InstanceID string     `json:"instance_id"`
	GroupID    string     `json:"group_id"`
	Body       string     `json:"body"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

// Stats summarises today's activity.
type Stats struct {
	ConversionsTotal  int64 `json:"conversions_total"`
	ConversionsFailed int64 `json:"conversions_failed"`
	PostsSent         int64 `json:"posts_sent"`
	PostsFailed       int64 `json:"posts_failed"`
	PostsPending      int64 `json:"posts_pending"`
}
