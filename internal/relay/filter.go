package relay

import "go.mau.fi/whatsmeow/types/events"

// SkipReason says why a message was not relayed.
type SkipReason string

const (
	SkipEmpty        SkipReason = "empty_message"
	SkipOwnMessage   SkipReason = "own_message"
	SkipNotGroup     SkipReason = "not_group"
	SkipNotMonitored SkipReason = "group_not_monitored"
	SkipNoLinks      SkipReason = "no_marketplace_links"
	SkipDuplicate    SkipReason = "duplicate_links"
	SkipNotConverted SkipReason = "conversion_failed"
	SkipNoTargets    SkipReason = "no_destination_groups"
)

// checkEvent applies the cheap checks that need no storage lookup.
func checkEvent(evt *events.Message) SkipReason {
	switch {
	case evt == nil || evt.Message == nil:
		return SkipEmpty
	case evt.Info.IsFromMe:
		return SkipOwnMessage
	case !evt.Info.IsGroup:
		return SkipNotGroup
	}
	return ""
}
