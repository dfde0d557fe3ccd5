package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xkrfer/telegram-pm-relay/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	updateCounter prometheus.Counter
}

// Attach registers the bot-level collectors and returns a provider handle.
func Attach(cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	counter := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "bot_updates_total",
		Help:      "Total number of Telegram updates processed",
	})

	return &Provider{
		updateCounter: counter,
	}, nil
}

// UpdateCounter exposes the processed-updates metric.
func (p *Provider) UpdateCounter() prometheus.Counter {
	if p == nil {
		return prometheus.NewCounter(prometheus.CounterOpts{})
	}
	return p.updateCounter
}
