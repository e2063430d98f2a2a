// Package messaging publishes room lifecycle events to NATS so that other
// services (analytics, moderation, history) can follow pairings without
// reaching into the matchmaker's in-process state.
package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/whisper/matchmaker/internal/pkg/logx"
)

// NATS subjects for room lifecycle events.
const (
	SubjectRoomCreated = "room.created"
	SubjectRoomActive  = "room.active"
	SubjectRoomClosed  = "room.closed"
)

// RoomEvent is the body of every room lifecycle event.
type RoomEvent struct {
	RoomID          string   `json:"roomId"`
	Users           []string `json:"users"`
	CommonInterests []string `json:"commonInterests,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	Timestamp       int64    `json:"timestamp"`
}

// NATSClient wraps the NATS connection.
type NATSClient struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "matchmaker",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	log := logx.Component("nats")

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info().Msg("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected")

	return &NATSClient{conn: nc, log: log}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// PublishRoomEvent encodes ev and publishes it on subject.
func (c *NATSClient) PublishRoomEvent(subject string, ev RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats: marshal %s event: %w", subject, err)
	}
	return c.Publish(subject, data)
}

// Close flushes pending publishes and closes the NATS connection.
func (c *NATSClient) Close() {
	if err := c.conn.Drain(); err != nil {
		c.log.Warn().Err(err).Msg("connection drain failed")
	}
	c.log.Info().Msg("client closed")
}
