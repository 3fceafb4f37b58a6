// Package notification delivers triggered rule alerts to external channels
// (Telegram, webhooks) and provides a fan-out over multiple backends. Each
// backend formats the raw evaluation result its own way: Telegram renders a
// MarkdownV2 message, the webhook posts the structured payload.
package notification

import (
	"context"
	"fmt"
	"log"

	"alert-systemv1/internal/metrics"
	"alert-systemv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Event is one triggered rule handed to the notification backends.
type Event struct {
	Level    AlertLevel
	RuleName string
	Result   model.AlertResult
}

// Instrument returns the "SYMBOL:EXCHANGE" the rule fired on.
func (ev Event) Instrument() string {
	return ev.Result.Symbol + ":" + ev.Result.Exchange
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an event. Returns error if delivery fails.
	Send(ctx context.Context, ev Event) error
	// Channel names the backend for metrics labels.
	Channel() string
}

// LogNotifier writes alerts to the process log (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, ev Event) error {
	log.Printf("[notify] [%s] %s on %s: bar %s  LHS=%.4f  RHS=%.4f",
		ev.Level, ev.RuleName, ev.Instrument(),
		ev.Result.BarTime.UTC().Format("2006-01-02 15:04"),
		ev.Result.Snapshot["LHS"], ev.Result.Snapshot["RHS"])
	return nil
}

func (n *LogNotifier) Channel() string { return "log" }

// Multi fans an event out to every backend, counting attempts and failures
// per channel. Delivery failures are logged, not returned; one dead backend
// must not block the others.
type Multi struct {
	backends []Notifier
	met      *metrics.Metrics
}

// NewMulti creates a fan-out notifier.
func NewMulti(met *metrics.Metrics, backends ...Notifier) *Multi {
	return &Multi{backends: backends, met: met}
}

func (m *Multi) Send(ctx context.Context, ev Event) error {
	for _, n := range m.backends {
		if m.met != nil {
			m.met.NotifyTotal.WithLabelValues(n.Channel()).Inc()
		}
		if err := n.Send(ctx, ev); err != nil {
			if m.met != nil {
				m.met.NotifyFailures.WithLabelValues(n.Channel()).Inc()
			}
			log.Printf("[notify] %s delivery failed: %v", n.Channel(), err)
		}
	}
	return nil
}

func (m *Multi) Channel() string { return "multi" }

// fmtSnapshot renders the deciding comparison's operands, tolerating a
// missing snapshot.
func fmtSnapshot(snap map[string]float64) string {
	if snap == nil {
		return ""
	}
	return fmt.Sprintf("LHS=%.4f RHS=%.4f", snap["LHS"], snap["RHS"])
}
