package notify

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/watchdog/internal/config"
	"github.com/hamed0406/watchdog/internal/domain"
)

const sendTimeout = 15 * time.Second

// Delivery outcomes reported to the observer.
const (
	DeliverySent       = "sent"
	DeliveryFailed     = "failed"
	DeliverySuppressed = "suppressed"
)

type channel struct {
	cfg    config.Channel
	sender Notifier
}

type ledgerKey struct {
	channel string
	service string
	kind    string
}

// Dispatcher routes events to channels and deduplicates them per
// (channel, service, kind) within each channel's cooldown.
type Dispatcher struct {
	logger  *zap.Logger
	now     func() time.Time
	observe func(channel, outcome string)

	mu       sync.Mutex
	channels []channel
	lastSent map[ledgerKey]time.Time
}

// NewDispatcher returns a dispatcher without channels. observe may be nil.
func NewDispatcher(logger *zap.Logger, observe func(channel, outcome string)) *Dispatcher {
	if observe == nil {
		observe = func(string, string) {}
	}
	return &Dispatcher{logger: logger, now: time.Now, observe: observe, lastSent: map[ledgerKey]time.Time{}}
}

// BuildSender returns the breaker-wrapped sender for one configured channel.
func BuildSender(ch config.Channel, logger *zap.Logger) (Notifier, error) {
	var n Notifier
	switch ch.Type {
	case config.ChannelSlack:
		n = NewSlack(ch.URL)
	case config.ChannelWebhook:
		n = NewWebhook(ch.URL, ch.Headers)
	case config.ChannelEmail:
		n = NewEmail(ch.SMTP)
	default:
		return nil, fmt.Errorf("%w: channel %q has unknown type %q", domain.ErrConfigInvalid, ch.Name, ch.Type)
	}
	return NewBreaker(ch.Name, n, logger), nil
}

// Configure replaces the channel set. The cooldown ledger survives, minus
// entries of channels that no longer exist. A channel whose settings did not
// change keeps its sender, and with it its breaker state.
func (d *Dispatcher) Configure(chs []config.Channel, build func(config.Channel) (Notifier, error)) error {
	d.mu.Lock()
	prev := d.channels
	d.mu.Unlock()

	next := make([]channel, 0, len(chs))
	for _, ch := range chs {
		if !ch.Enabled {
			continue
		}
		if i := slices.IndexFunc(prev, func(c channel) bool { return reflect.DeepEqual(c.cfg, ch) }); i >= 0 {
			next = append(next, prev[i])
			continue
		}
		s, err := build(ch)
		if err != nil {
			return err
		}
		next = append(next, channel{cfg: ch, sender: s})
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = next
	for k := range d.lastSent {
		if !slices.ContainsFunc(next, func(c channel) bool { return c.cfg.Name == k.channel }) {
			delete(d.lastSent, k)
		}
	}
	return nil
}

// Dispatch sends ev to every eligible channel concurrently and waits for
// the sends. Delivery failures are logged and never returned. It returns
// the number of channels that accepted the event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) int {
	targets := d.claim(ev)
	if len(targets) == 0 {
		return 0
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)
	for _, ch := range targets {
		wg.Add(1)
		go func(ch channel) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if err := ch.sender.Send(sctx, ev); err != nil {
				err = fmt.Errorf("%w: %s: %w", domain.ErrDeliveryFailed, ch.cfg.Name, err)
				d.logger.Warn("notification_failed",
					zap.String("channel", ch.cfg.Name),
					zap.String("service", ev.Service),
					zap.String("kind", string(ev.Kind)),
					zap.Error(err),
				)
				d.observe(ch.cfg.Name, DeliveryFailed)
				return
			}
			d.logger.Info("notification_sent",
				zap.String("channel", ch.cfg.Name),
				zap.String("service", ev.Service),
				zap.String("kind", string(ev.Kind)),
			)
			d.observe(ch.cfg.Name, DeliverySent)
			mu.Lock()
			sent++
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return sent
}

// claim picks the channels that should get ev and records the send time in
// the ledger in the same critical section, so concurrent identical events
// cannot both pass the cooldown check.
func (d *Dispatcher) claim(ev Event) []channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	var out []channel
	for _, ch := range d.channels {
		if len(ev.Channels) > 0 && !slices.Contains(ev.Channels, ch.cfg.Name) {
			continue
		}
		if ch.cfg.CriticalOnly && ev.Severity != SeverityCritical {
			continue
		}
		key := ledgerKey{channel: ch.cfg.Name, service: ev.Service, kind: string(ev.Kind)}
		if ev.Kind == KindEscalated {
			key.kind += ":" + strconv.Itoa(ev.Level)
		}
		if last, ok := d.lastSent[key]; ok && now.Sub(last) < ch.cfg.Cooldown() {
			d.observe(ch.cfg.Name, DeliverySuppressed)
			continue
		}
		d.lastSent[key] = now
		out = append(out, ch)
	}
	return out
}

// Channels returns the names of the active channels.
func (d *Dispatcher) Channels() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.channels))
	for i, ch := range d.channels {
		out[i] = ch.cfg.Name
	}
	return out
}
