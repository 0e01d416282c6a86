package nats

import (
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/slotrelay/service/relay"
)

// StatsEvent is a confirmed-transaction stat published to NATS.
// It is published to the subject "bench.stats.{endpoint}" in JetStream.
type StatsEvent struct {
	Endpoint  string `json:"endpoint"`
	Signature string `json:"signature"`
	Mode      string `json:"mode"`
	Success   bool   `json:"success"`

	// Slot information
	SlotSent   uint64 `json:"slot_sent"`
	SlotLanded uint64 `json:"slot_landed"`
	SlotDelta  uint64 `json:"slot_delta"`

	// Timing information
	ElapsedMS   int64     `json:"elapsed_ms"`
	ReportedAt  time.Time `json:"reported_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromConfirmedStat converts a relay stat to a StatsEvent for publishing.
func FromConfirmedStat(stat relay.ConfirmedStat) *StatsEvent {
	event := &StatsEvent{
		Endpoint:    stat.Endpoint,
		Signature:   stat.Signature.String(),
		Mode:        stat.Mode,
		Success:     stat.Success,
		SlotSent:    stat.SlotSent,
		SlotLanded:  stat.SlotLanded,
		ElapsedMS:   stat.Elapsed.Milliseconds(),
		ReportedAt:  stat.ReportedAt,
		PublishedAt: time.Now().UTC(),
	}
	if stat.SlotLanded >= stat.SlotSent {
		event.SlotDelta = stat.SlotLanded - stat.SlotSent
	}
	return event
}

// Subject returns the subject the event is published to.
func (e *StatsEvent) Subject() string {
	return SubjectFor(e.Endpoint)
}

// SubjectFor maps an endpoint name to a single subject token. Characters NATS
// treats as separators or wildcards are replaced with '_'.
func SubjectFor(endpoint string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '/', ':':
			return '_'
		}
		return r
	}, endpoint)
	if token == "" {
		token = "unknown"
	}
	return fmt.Sprintf("%s.%s", SubjectPrefix, token)
}
