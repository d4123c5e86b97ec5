// Package gateway delivers batches of push messages to an external push
// service. Clients are stateless: they never split, retry or inspect
// per-message receipts. A batch is either accepted as a whole or not.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// MaxBatchSize is the largest batch a single Send accepts. Callers are
// responsible for partitioning.
const MaxBatchSize = 100

// Message is one device-addressed push.
type Message struct {
	To        string         `json:"to"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Sound     string         `json:"sound,omitempty"`
	Badge     int            `json:"badge,omitempty"`
	Priority  string         `json:"priority,omitempty"`
	ChannelID string         `json:"channelId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Result is the structural outcome of one gateway call.
type Result struct {
	Accepted   bool
	StatusCode int
	Raw        []byte
}

// Client sends a batch of at most MaxBatchSize messages. A non-nil error
// means the call itself failed (transport, timeout, oversize batch); a nil
// error with Accepted=false means the gateway rejected the batch.
type Client interface {
	Send(ctx context.Context, batch []Message) (Result, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider        string // "expo" (default) or "fcm"
	ExpoURL         string
	ExpoAccessToken string
	Timeout         time.Duration
	RatePerSecond   float64
	FCMCredentials  string
}

// New builds the configured client.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Client, error) {
	switch cfg.Provider {
	case "", "expo":
		return NewExpoClient(cfg.ExpoURL, cfg.ExpoAccessToken, cfg.Timeout, cfg.RatePerSecond, logger), nil
	case "fcm":
		return NewFCMClient(ctx, cfg.FCMCredentials, cfg.Timeout, logger)
	default:
		return nil, fmt.Errorf("unknown push provider %q", cfg.Provider)
	}
}

func checkBatch(batch []Message) error {
	if len(batch) > MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds gateway limit %d", len(batch), MaxBatchSize)
	}
	return nil
}

// Truncate returns a truncated string representation for log lines.
func Truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
