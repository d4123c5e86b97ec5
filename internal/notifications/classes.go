package notifications

import (
	"sort"
	"time"

	"github.com/albapepper/scoracle-push/internal/devices"
	"github.com/albapepper/scoracle-push/internal/gateway"
)

// Class names.
const (
	ClassInactivityReminder = "inactivity_reminder"
	ClassNewArticle         = "new_article"
	ClassNewPodcast         = "new_podcast"
	ClassNewVideo           = "new_video"
	ClassLiveEvent          = "live_event"
)

const (
	reminderTitle = "Your feed has been busy"
	reminderBody  = "New stories, episodes and videos landed while you were away. Tap to catch up."
)

var registry = map[string]Class{
	ClassInactivityReminder: {
		Name:             ClassInactivityReminder,
		Description:      "Nudge devices idle for 14h, at most once per 24h",
		InactivityWindow: ReminderInactivityWindow,
		ThrottleWindow:   DefaultThrottleWindow,
		RespectMute:      true,
		PreferenceKey:    devices.PrefReminders,
		Build:            buildReminder,
	},
	ClassNewArticle: contentClass(ClassNewArticle, devices.PrefNewArticles, "content", "Announce a newly published article"),
	ClassNewPodcast: contentClass(ClassNewPodcast, devices.PrefNewPodcasts, "content", "Announce a new podcast episode"),
	ClassNewVideo:   contentClass(ClassNewVideo, devices.PrefNewVideos, "content", "Announce a new video"),
	ClassLiveEvent:  contentClass(ClassLiveEvent, devices.PrefLiveEvents, "live", "Announce a scheduled live event"),
}

// Lookup returns the class registered under name.
func Lookup(name string) (Class, bool) {
	c, ok := registry[name]
	return c, ok
}

// Classes returns every registered class sorted by name.
func Classes() []Class {
	out := make([]Class, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func contentClass(name, pref, channel, desc string) Class {
	return Class{
		Name:            name,
		Description:     desc,
		RespectMute:     true,
		PreferenceKey:   pref,
		RequiresContent: true,
		Build: func(d devices.Device, p RunParams) gateway.Message {
			return message(d, name, channel, p.Title, p.Body, p.Data)
		},
	}
}

func buildReminder(d devices.Device, p RunParams) gateway.Message {
	title, body := reminderTitle, reminderBody
	if p.Title != "" {
		title = p.Title
	}
	if p.Body != "" {
		body = p.Body
	}
	return message(d, ClassInactivityReminder, "reminders", title, body, p.Data)
}

func message(d devices.Device, class, channel, title, body string, extra map[string]any) gateway.Message {
	data := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		data[k] = v
	}
	data["type"] = class
	return gateway.Message{
		To:        d.PushToken,
		Title:     title,
		Body:      body,
		Sound:     "default",
		Badge:     1,
		Priority:  "high",
		ChannelID: channel,
		Data:      data,
	}
}

// inactivityCutoff returns the last_active_at bound for class at now.
func inactivityCutoff(c Class, now time.Time) time.Time {
	return now.Add(-c.InactivityWindow)
}
