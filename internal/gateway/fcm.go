package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// fcmSender is the part of *messaging.Client the FCM gateway uses.
type fcmSender interface {
	SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error)
}

// FCMClient delivers batches through Firebase Cloud Messaging. Tokens must
// be FCM registration tokens.
type FCMClient struct {
	sender  fcmSender
	timeout time.Duration
	logger  *slog.Logger
}

// NewFCMClient initialises Firebase from a service account file.
func NewFCMClient(ctx context.Context, credentialsFile string, timeout time.Duration, logger *slog.Logger) (*FCMClient, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("FIREBASE_CREDENTIALS_FILE is required for the fcm provider")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}
	return newFCMClient(client, timeout, logger), nil
}

func newFCMClient(sender fcmSender, timeout time.Duration, logger *slog.Logger) *FCMClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &FCMClient{sender: sender, timeout: timeout, logger: logger}
}

// Send submits the batch with SendEach. A call-level error fails the whole
// batch; per-token failures inside an accepted call are only logged.
func (c *FCMClient) Send(ctx context.Context, batch []Message) (Result, error) {
	if err := checkBatch(batch); err != nil {
		return Result{}, err
	}
	if len(batch) == 0 {
		return Result{Accepted: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msgs := make([]*messaging.Message, 0, len(batch))
	for _, m := range batch {
		msgs = append(msgs, toFCM(m))
	}

	br, err := c.sender.SendEach(ctx, msgs)
	if err != nil {
		return Result{}, fmt.Errorf("fcm send each: %w", err)
	}

	raw, _ := json.Marshal(map[string]int{
		"success_count": br.SuccessCount,
		"failure_count": br.FailureCount,
	})
	if br.FailureCount > 0 {
		c.logger.Warn("FCM batch accepted with failures",
			"size", len(batch), "failures", br.FailureCount)
	}
	return Result{Accepted: true, StatusCode: 200, Raw: raw}, nil
}

func toFCM(m Message) *messaging.Message {
	msg := &messaging.Message{
		Token: m.To,
		Notification: &messaging.Notification{
			Title: m.Title,
			Body:  m.Body,
		},
		Data: stringData(m.Data),
		Android: &messaging.AndroidConfig{
			Priority: androidPriority(m.Priority),
			Notification: &messaging.AndroidNotification{
				ChannelID: m.ChannelID,
				Sound:     m.Sound,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: m.Sound},
			},
		},
	}
	if m.Badge > 0 {
		badge := m.Badge
		msg.APNS.Payload.Aps.Badge = &badge
	}
	return msg
}

func androidPriority(p string) string {
	if p == "high" {
		return "high"
	}
	return "normal"
}

// stringData flattens data values to strings, which FCM requires.
func stringData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch x := v.(type) {
		case string:
			out[k] = x
		case fmt.Stringer:
			out[k] = x.String()
		default:
			b, err := json.Marshal(x)
			if err != nil {
				out[k] = fmt.Sprint(x)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
