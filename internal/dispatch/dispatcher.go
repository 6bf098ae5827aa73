package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/serverpulse/serverpulse/internal/alert"
	"github.com/serverpulse/serverpulse/internal/config"
	"github.com/serverpulse/serverpulse/internal/telemetry"
)

// Sender is the uniform contract every delivery channel implements.
type Sender interface {
	// Name identifies the channel in logs and telemetry.
	Name() string

	// Send delivers one alert. Implementations must honor ctx and return
	// an error on failure; the dispatcher isolates and logs it.
	Send(ctx context.Context, a alert.Alert) error
}

// Dispatcher fans alerts out to every configured channel. It owns no
// durable state — only the channel handles and the per-attempt timeout.
type Dispatcher struct {
	senders []Sender
	timeout time.Duration
	metrics *telemetry.Metrics // nil disables self-instrumentation
}

// New creates a Dispatcher over the given senders. metrics may be nil.
func New(senders []Sender, timeout time.Duration, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{senders: senders, timeout: timeout, metrics: metrics}
}

// NewFromConfig builds the channel set from validated configuration:
// the email channel when enabled plus one webhook sender per target.
func NewFromConfig(cfg config.ChannelsConfig, timeout time.Duration, metrics *telemetry.Metrics) *Dispatcher {
	var senders []Sender
	if cfg.Email.Enabled {
		senders = append(senders, NewEmail(cfg.Email))
	}
	for _, wh := range cfg.Webhooks {
		senders = append(senders, NewWebhook(wh))
	}
	return New(senders, timeout, metrics)
}

// ChannelCount reports how many channels are configured.
func (d *Dispatcher) ChannelCount() int { return len(d.senders) }

// Dispatch delivers a to every channel. Channels run concurrently, each
// under its own timeout; Dispatch returns once every attempt has finished
// or timed out. Delivery is best-effort; failures are logged, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, a alert.Alert) {
	if len(d.senders) == 0 {
		slog.Debug("dispatch: no channels configured", "kind", a.Kind)
		return
	}

	var wg sync.WaitGroup
	for _, s := range d.senders {
		wg.Add(1)
		go func(s Sender) {
			defer wg.Done()
			d.send(ctx, s, a)
		}(s)
	}
	wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, s Sender, a alert.Alert) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := s.Send(sendCtx, a); err != nil {
		if d.metrics != nil {
			d.metrics.DispatchFailures.WithLabelValues(s.Name()).Inc()
		}
		slog.Error("dispatch: channel delivery failed",
			"channel", s.Name(),
			"kind", a.Kind,
			"severity", a.Severity,
			"err", err,
		)
		return
	}
	if d.metrics != nil {
		d.metrics.AlertsDelivered.WithLabelValues(s.Name(), string(a.Kind)).Inc()
	}
	slog.Info("dispatch: alert delivered",
		"channel", s.Name(),
		"kind", a.Kind,
		"resolved", a.Resolved,
	)
}
