package broadcast

import (
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"
)

// dashboardChannel is the PubNub channel every unscoped event lands on.
// Category-scoped events additionally go to dashboard-<category>.
const dashboardChannel = "dashboard"

// PubNubMirror republishes bus events to PubNub so externally hosted
// dashboards can follow the queue without a direct WebSocket to this
// server. It is started only when publish keys are configured.
type PubNubMirror struct {
	pn  *pubnub.PubNub
	sub *Subscription
}

func NewPubNubMirror(pn *pubnub.PubNub, bus *Bus) *PubNubMirror {
	return &PubNubMirror{
		pn:  pn,
		sub: bus.Subscribe(""),
	}
}

// Run forwards events until the bus subscription closes.
func (m *PubNubMirror) Run() {
	for event := range m.sub.C {
		message := map[string]any{
			"event":   event.Kind.WireName(),
			"payload": event.Payload(),
		}

		channels := []string{dashboardChannel}
		if event.Category != "" {
			channels = append(channels, fmt.Sprintf("%s-%s", dashboardChannel, event.Category))
		}

		for _, channel := range channels {
			_, _, err := m.pn.Publish().
				Channel(channel).
				Message(message).
				Execute()
			if err != nil {
				slog.Error("pubnub publish failed", "channel", channel, "event", event.Kind.WireName(), "error", err)
			}
		}
	}
}

// Stop detaches the mirror from the bus, ending Run.
func (m *PubNubMirror) Stop() {
	m.sub.Close()
}
