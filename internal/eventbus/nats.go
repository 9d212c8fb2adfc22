/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus publishes finished-play events to the downstream stats
// ingestion service over NATS. Publication is fire-and-forget: a broker
// outage is logged and playback carries on.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher sends one JSON message per finalized play.
type Publisher interface {
	Publish(topic string, payload any)
	Close()
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "turnstyle.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// message is the envelope published to NATS.
type message struct {
	Topic     string    `json:"topic"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"message_id"`
}

// NATSPublisher is the production Publisher.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSPublisher connects to NATS with reconnect handling.
func NewNATSPublisher(cfg NATSConfig, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSPublisher{
		conn:   conn,
		prefix: cfg.SubjectPrefix,
		logger: logger.With().Str("component", "eventbus").Logger(),
	}, nil
}

// Publish marshals payload and publishes it under the prefixed subject.
// Errors are logged, never returned; the coordinator does not retry.
func (p *NATSPublisher) Publish(topic string, payload any) {
	data, err := json.Marshal(message{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		MessageID: uuid.NewString(),
	})
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("marshal broker message")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, topic)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Msg("publish broker message")
	}
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("nats drain")
	}
}

// NoopPublisher drops every message. Used when no broker is configured.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(string, any) {}

// Close implements Publisher.
func (NoopPublisher) Close() {}
