package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/avialab/crashsync/internal/protocol"
)

// Config holds configuration for the NATS event relay.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default relay configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "crash.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher republishes every normalized game event onto per-type NATS
// subjects so sibling processes (bots, recorders, analytics) can follow the
// feed without holding their own socket to the game server.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

func NewPublisher(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	prefix := config.SubjectPrefix
	if prefix == "" {
		prefix = "crash.events"
	}
	return &Publisher{nc: nc, prefix: prefix}, nil
}

type envelope struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
	Payload    map[string]any `json:"payload"`
}

// Publish relays one normalized event. Failures are logged, never propagated:
// the relay is a tap on the feed, not part of the reconciliation path.
func (p *Publisher) Publish(ev protocol.Event) {
	subject := ev.Type
	if subject == "" {
		subject = "unknown"
	}
	data, err := json.Marshal(envelope{
		Type:       ev.Type,
		SessionID:  ev.SessionID,
		ReceivedAt: time.Now().UTC(),
		Payload:    ev.Raw,
	})
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("failed to marshal relay envelope")
		return
	}
	if err := p.nc.Publish(p.prefix+"."+subject, data); err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("failed to publish relay event")
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
