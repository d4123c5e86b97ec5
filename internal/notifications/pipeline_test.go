package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-push/internal/devices"
	appErr "github.com/albapepper/scoracle-push/internal/errors"
	"github.com/albapepper/scoracle-push/internal/gateway"
)

var runNow = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := runNow.Add(d)
	return &t
}

// fakeGateway records batch sizes and fails the batches listed in failAt
// (1-based) with either a transport error or a rejection.
type fakeGateway struct {
	mu       sync.Mutex
	sizes    []int
	tokens   []string
	failAt   map[int]bool
	rejectAt map[int]bool
}

func (g *fakeGateway) Send(ctx context.Context, batch []gateway.Message) (gateway.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(batch) > gateway.MaxBatchSize {
		return gateway.Result{}, fmt.Errorf("oversize batch %d", len(batch))
	}
	g.sizes = append(g.sizes, len(batch))
	for _, m := range batch {
		g.tokens = append(g.tokens, m.To)
	}
	n := len(g.sizes)
	if g.failAt[n] {
		return gateway.Result{}, context.DeadlineExceeded
	}
	if g.rejectAt[n] {
		return gateway.Result{Accepted: false, StatusCode: 500, Raw: []byte(`{"error":"boom"}`)}, nil
	}
	return gateway.Result{Accepted: true, StatusCode: 200}, nil
}

func idleDevices(n int, idle time.Duration) []devices.Device {
	out := make([]devices.Device, n)
	for i := range out {
		out[i] = devices.Device{
			UserID:       fmt.Sprintf("user-%03d", i),
			PushToken:    fmt.Sprintf("ExponentPushToken[%03d]", i),
			Platform:     devices.PlatformIOS,
			IsActive:     true,
			LastActiveAt: at(-idle),
		}
	}
	return out
}

func newEngine(reg devices.Registry, gw gateway.Client) *Engine {
	return NewEngine(reg, gw, nil, nil).WithClock(func() time.Time { return runNow })
}

func reminder(t *testing.T) Class {
	c, ok := Lookup(ClassInactivityReminder)
	require.True(t, ok)
	return c
}

func TestScenarioA_ThreeIdleDevices(t *testing.T) {
	reg := devices.NewMemoryRegistry(idleDevices(3, 15*time.Hour)...)
	gw := &fakeGateway{}

	out, err := newEngine(reg, gw).Run(context.Background(), reminder(t), RunParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Targeted)
	assert.Equal(t, 3, out.Success)
	assert.Zero(t, out.Errors)
	assert.Equal(t, []int{3}, gw.sizes)
	assert.NotEmpty(t, out.RunID)

	for i := 0; i < 3; i++ {
		d, _ := reg.Device(fmt.Sprintf("ExponentPushToken[%03d]", i))
		require.NotNil(t, d.LastReminderSentAt)
		assert.True(t, d.LastReminderSentAt.Equal(runNow))
	}
}

func TestScenarioB_RecentlyRemindedIsThrottled(t *testing.T) {
	devs := idleDevices(2, 20*time.Hour)
	devs[0].LastReminderSentAt = at(-2 * time.Hour)
	devs[1].LastReminderSentAt = at(-25 * time.Hour)
	reg := devices.NewMemoryRegistry(devs...)
	gw := &fakeGateway{}

	out, err := newEngine(reg, gw).Run(context.Background(), reminder(t), RunParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Targeted)
	assert.Equal(t, []string{devs[1].PushToken}, gw.tokens)

	throttled, _ := reg.Device(devs[0].PushToken)
	assert.True(t, throttled.LastReminderSentAt.Equal(runNow.Add(-2*time.Hour)), "throttled device is not re-stamped")
}

func TestScenarioC_MuteWindow(t *testing.T) {
	tests := []struct {
		name       string
		mutedUntil *time.Time
		want       int
	}{
		{name: "muted for another hour", mutedUntil: at(time.Hour), want: 0},
		{name: "mute expired an hour ago", mutedUntil: at(-time.Hour), want: 1},
		{name: "mute ends exactly now", mutedUntil: at(0), want: 1},
		{name: "never muted", mutedUntil: nil, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devs := idleDevices(1, 15*time.Hour)
			devs[0].MutedUntil = tt.mutedUntil
			gw := &fakeGateway{}
			out, err := newEngine(devices.NewMemoryRegistry(devs...), gw).Run(context.Background(), reminder(t), RunParams{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Targeted)
			assert.Len(t, gw.tokens, tt.want)
		})
	}
}

func TestScenarioD_BatchPartitioning(t *testing.T) {
	reg := devices.NewMemoryRegistry(idleDevices(250, 15*time.Hour)...)
	gw := &fakeGateway{}

	out, err := newEngine(reg, gw).Run(context.Background(), reminder(t), RunParams{})
	require.NoError(t, err)
	assert.Equal(t, []int{100, 100, 50}, gw.sizes)
	assert.Equal(t, 3, out.Batches)
	assert.Equal(t, 250, out.Success)
}

func TestInactiveDevicesNeverTargeted(t *testing.T) {
	devs := idleDevices(4, 30*time.Hour)
	devs[1].IsActive = false
	devs[3].IsActive = false
	for _, class := range Classes() {
		t.Run(class.Name, func(t *testing.T) {
			gw := &fakeGateway{}
			_, err := newEngine(devices.NewMemoryRegistry(devs...), gw).
				Run(context.Background(), class, RunParams{Title: "New", Body: "Fresh content"})
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{devs[0].PushToken, devs[2].PushToken}, gw.tokens)
		})
	}
}

func TestRecentlyActiveDevicesNotReminded(t *testing.T) {
	devs := idleDevices(2, 15*time.Hour)
	devs[0].LastActiveAt = at(-13 * time.Hour)
	devs[1].LastActiveAt = nil
	gw := &fakeGateway{}

	out, err := newEngine(devices.NewMemoryRegistry(devs...), gw).Run(context.Background(), reminder(t), RunParams{})
	require.NoError(t, err)
	assert.Zero(t, out.Targeted)
	assert.Empty(t, gw.sizes)
}

func TestPreferenceGate(t *testing.T) {
	devs := idleDevices(3, 15*time.Hour)
	devs[0].Preferences = devices.Preferences{devices.PrefReminders: false}
	devs[1].Preferences = devices.Preferences{devices.PrefNewVideos: false}
	reg := devices.NewMemoryRegistry(devs...)

	gw := &fakeGateway{}
	out, err := newEngine(reg, gw).Run(context.Background(), reminder(t), RunParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Targeted)
	assert.NotContains(t, gw.tokens, devs[0].PushToken)

	video, _ := Lookup(ClassNewVideo)
	gw = &fakeGateway{}
	out, err = newEngine(reg, gw).Run(context.Background(), video, RunParams{Title: "New video", Body: "Highlights are up"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Targeted)
	assert.NotContains(t, gw.tokens, devs[1].PushToken)
}

func TestPartialFailureAccounting(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		failAt   map[int]bool
		rejectAt map[int]bool
		success  int
		errors   int
	}{
		{name: "middle batch times out", n: 250, failAt: map[int]bool{2: true}, success: 150, errors: 100},
		{name: "last batch rejected", n: 250, rejectAt: map[int]bool{3: true}, success: 200, errors: 50},
		{name: "every batch fails", n: 120, failAt: map[int]bool{1: true, 2: true}, success: 0, errors: 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := devices.NewMemoryRegistry(idleDevices(tt.n, 15*time.Hour)...)
			gw := &fakeGateway{failAt: tt.failAt, rejectAt: tt.rejectAt}

			out, err := newEngine(reg, gw).Run(context.Background(), reminder(t), RunParams{})
			require.NoError(t, err)
			assert.Equal(t, tt.success, out.Success)
			assert.Equal(t, tt.errors, out.Errors)
			assert.Equal(t, tt.n, out.Success+out.Errors)

			// Throttle is written for failed batches too.
			d, _ := reg.Device(fmt.Sprintf("ExponentPushToken[%03d]", tt.n-1))
			require.NotNil(t, d.LastReminderSentAt)
			assert.True(t, d.LastReminderSentAt.Equal(runNow))
		})
	}
}

func TestRegistryFailures(t *testing.T) {
	reg := devices.NewMemoryRegistry(idleDevices(2, 15*time.Hour)...)
	reg.FailFind = errors.New("connection reset")
	gw := &fakeGateway{}

	_, err := newEngine(reg, gw).Run(context.Background(), reminder(t), RunParams{})
	assert.True(t, appErr.IsRegistry(err))
	assert.Empty(t, gw.sizes)

	reg.FailFind = nil
	reg.FailUpdate = errors.New("deadlock detected")
	out, err := newEngine(reg, gw).Run(context.Background(), reminder(t), RunParams{})
	assert.True(t, appErr.IsRegistry(err))
	assert.Equal(t, 2, out.Success, "batches were attempted before the write-back failed")
}

func TestThrottleStampSkipsFilteredSiblingDevice(t *testing.T) {
	phone := devices.Device{UserID: "u1", PushToken: "tA", IsActive: true, LastActiveAt: at(-15 * time.Hour)}
	tablet := devices.Device{UserID: "u1", PushToken: "tB", IsActive: true, LastActiveAt: at(-15 * time.Hour), MutedUntil: at(time.Hour)}
	reg := devices.NewMemoryRegistry(phone, tablet)
	gw := &fakeGateway{}

	out, err := newEngine(reg, gw).Run(context.Background(), reminder(t), RunParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Targeted)
	assert.Equal(t, []string{"tA"}, gw.tokens)

	sent, _ := reg.Device("tA")
	require.NotNil(t, sent.LastReminderSentAt)
	assert.True(t, sent.LastReminderSentAt.Equal(runNow))

	muted, _ := reg.Device("tB")
	assert.Nil(t, muted.LastReminderSentAt, "muted device was not messaged and keeps no throttle stamp")
}

func TestUnknownPreferenceKeyRejected(t *testing.T) {
	reg := devices.NewMemoryRegistry(idleDevices(1, 15*time.Hour)...)
	gw := &fakeGateway{}
	class := Class{Name: "custom", PreferenceKey: "carrier_pigeons", RespectMute: true, Build: reminder(t).Build}

	_, err := newEngine(reg, gw).Run(context.Background(), class, RunParams{})
	assert.True(t, appErr.IsValidation(err))
	assert.Empty(t, gw.sizes)

	class.PreferenceKey = devices.PrefReminders
	out, err := newEngine(reg, gw).Run(context.Background(), class, RunParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Success)
}

func TestContentClassRequiresContent(t *testing.T) {
	reg := devices.NewMemoryRegistry(idleDevices(1, time.Hour)...)
	gw := &fakeGateway{}
	e := newEngine(reg, gw)

	_, err := e.RunByName(context.Background(), ClassNewArticle, RunParams{Title: "only a title"})
	assert.True(t, appErr.IsValidation(err))
	assert.Empty(t, gw.sizes)

	_, err = e.RunByName(context.Background(), "carrier_pigeon", RunParams{})
	assert.True(t, appErr.IsNotFound(err))

	out, err := e.RunByName(context.Background(), ClassNewArticle, RunParams{
		Title: "Breaking", Body: "Trade deadline recap", Data: map[string]any{"article_id": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Success)

	d, _ := reg.Device("ExponentPushToken[000]")
	assert.Nil(t, d.LastReminderSentAt, "unthrottled classes keep no throttle state")
	assert.Zero(t, reg.Updates)
}

func TestEmptyRunIsNotAnError(t *testing.T) {
	gw := &fakeGateway{}
	out, err := newEngine(devices.NewMemoryRegistry(), gw).Run(context.Background(), reminder(t), RunParams{})
	require.NoError(t, err)
	assert.Zero(t, out.Targeted)
	assert.Zero(t, out.Success+out.Errors)
	assert.Empty(t, gw.sizes)
}

func TestCancelledContextStillCompletes(t *testing.T) {
	reg := devices.NewMemoryRegistry(idleDevices(3, 15*time.Hour)...)
	gw := &fakeGateway{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := newEngine(reg, gw).Run(ctx, reminder(t), RunParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Success)
}

type memRecorder struct {
	runs []Outcome
}

func (m *memRecorder) Record(ctx context.Context, out Outcome) error {
	m.runs = append(m.runs, out)
	return nil
}

func (m *memRecorder) Recent(ctx context.Context, limit int) ([]Outcome, error) {
	return m.runs, nil
}

func TestRunIsRecorded(t *testing.T) {
	rec := &memRecorder{}
	reg := devices.NewMemoryRegistry(idleDevices(2, 15*time.Hour)...)
	e := NewEngine(reg, &fakeGateway{}, rec, nil).WithClock(func() time.Time { return runNow })

	out, err := e.Run(context.Background(), reminder(t), RunParams{})
	require.NoError(t, err)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, out.RunID, rec.runs[0].RunID)
	assert.Equal(t, 2, rec.runs[0].Success)
}

func TestMessageShape(t *testing.T) {
	d := devices.Device{UserID: "u", PushToken: "ExponentPushToken[x]", IsActive: true}
	m := reminder(t).Build(d, RunParams{})
	assert.Equal(t, "ExponentPushToken[x]", m.To)
	assert.Equal(t, reminderTitle, m.Title)
	assert.Equal(t, "default", m.Sound)
	assert.Equal(t, "high", m.Priority)
	assert.Equal(t, "reminders", m.ChannelID)
	assert.Equal(t, ClassInactivityReminder, m.Data["type"])
}
