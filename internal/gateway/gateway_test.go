package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func batchOf(n int) []Message {
	out := make([]Message, n)
	for i := range out {
		out[i] = Message{To: fmt.Sprintf("ExponentPushToken[%d]", i), Title: "t", Body: "b", Sound: "default", Priority: "high", ChannelID: "default"}
	}
	return out
}

func TestExpoClientAccepted(t *testing.T) {
	var got []Message
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
		// Per-ticket errors inside a 2xx do not affect acceptance.
		io.WriteString(w, `{"data":[{"status":"error","message":"DeviceNotRegistered"}]}`)
	}))
	defer srv.Close()

	c := NewExpoClient(srv.URL, "secret-token", time.Second, 0, nil)
	res, err := c.Send(context.Background(), batchOf(3))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(res.Raw), "DeviceNotRegistered")
	assert.Len(t, got, 3)
	assert.Equal(t, "ExponentPushToken[0]", got[0].To)
	assert.Equal(t, "Bearer secret-token", auth)
}

func TestExpoClientRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"errors":[{"code":"TOO_MANY_REQUESTS"}]}`)
	}))
	defer srv.Close()

	res, err := NewExpoClient(srv.URL, "", time.Second, 0, nil).Send(context.Background(), batchOf(2))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Contains(t, string(res.Raw), "TOO_MANY_REQUESTS")
}

func TestExpoClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewExpoClient(srv.URL, "", 50*time.Millisecond, 0, nil).Send(context.Background(), batchOf(1))
	assert.Error(t, err)
}

func TestExpoClientOversizeBatch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	_, err := NewExpoClient(srv.URL, "", time.Second, 0, nil).Send(context.Background(), batchOf(MaxBatchSize+1))
	assert.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls), "oversize batches never reach the gateway")
}

func TestExpoClientOmitsAuthWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	res, err := NewExpoClient(srv.URL, "", time.Second, 100, nil).Send(context.Background(), batchOf(1))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

type mockFCM struct {
	mock.Mock
}

func (m *mockFCM) SendEach(ctx context.Context, msgs []*messaging.Message) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, msgs)
	br, _ := args.Get(0).(*messaging.BatchResponse)
	return br, args.Error(1)
}

func TestFCMClientSend(t *testing.T) {
	m := &mockFCM{}
	m.On("SendEach", mock.Anything, mock.MatchedBy(func(msgs []*messaging.Message) bool {
		return len(msgs) == 2 && msgs[0].Token == "ExponentPushToken[0]"
	})).Return(&messaging.BatchResponse{SuccessCount: 1, FailureCount: 1}, nil).Once()

	res, err := newFCMClient(m, time.Second, nil).Send(context.Background(), batchOf(2))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.JSONEq(t, `{"success_count":1,"failure_count":1}`, string(res.Raw))
	m.AssertExpectations(t)
}

func TestFCMClientCallFailure(t *testing.T) {
	m := &mockFCM{}
	m.On("SendEach", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded")).Once()

	_, err := newFCMClient(m, time.Second, nil).Send(context.Background(), batchOf(1))
	assert.ErrorContains(t, err, "quota exceeded")
	m.AssertExpectations(t)
}

func TestToFCM(t *testing.T) {
	msg := toFCM(Message{
		To: "fcm-token", Title: "Hi", Body: "There", Sound: "default", Badge: 2,
		Priority: "high", ChannelID: "reminders",
		Data: map[string]any{"type": "reminder", "count": 3},
	})
	assert.Equal(t, "fcm-token", msg.Token)
	assert.Equal(t, "Hi", msg.Notification.Title)
	assert.Equal(t, "high", msg.Android.Priority)
	assert.Equal(t, "reminders", msg.Android.Notification.ChannelID)
	require.NotNil(t, msg.APNS.Payload.Aps.Badge)
	assert.Equal(t, 2, *msg.APNS.Payload.Aps.Badge)
	assert.Equal(t, map[string]string{"type": "reminder", "count": "3"}, msg.Data)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "carrier-pigeon"}, nil)
	assert.Error(t, err)

	c, err := New(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &ExpoClient{}, c)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate([]byte("short"), 10))
	assert.Equal(t, "exact", Truncate([]byte("exact"), 5))
	assert.Equal(t, "abc...", Truncate([]byte("abcdef"), 3))
	assert.Equal(t, "", Truncate(nil, 3))
}
