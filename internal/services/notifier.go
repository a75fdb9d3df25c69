package services

import (
	"smart-attendance-go/internal/core/session"
	"smart-attendance-go/internal/integrations/mqtt"
	"smart-attendance-go/internal/server/sse"
)

// AttendancePublisher sends recorded attendance events to an external
// broker.
type AttendancePublisher interface {
	PublishAttendance(event mqtt.AttendanceEvent)
}

// PresencePublisher updates per-identity presence state.
type PresencePublisher interface {
	PublishPresence(name string, present bool)
}

// Notifier fans processed observations out to the browser event stream and
// the MQTT integrations. The hub is always set; the publishers may be nil
// when the integration is disabled.
type Notifier struct {
	hub        *sse.Hub
	attendance AttendancePublisher
	presence   PresencePublisher
}

// NewNotifier wires the event fan-out.
func NewNotifier(hub *sse.Hub, attendance AttendancePublisher, presence PresencePublisher) *Notifier {
	return &Notifier{hub: hub, attendance: attendance, presence: presence}
}

// ObservationProcessed implements session.Observer. Every processed
// observation hits the SSE stream; attendance and presence events only go
// out when the ledger write succeeded. Broker round-trips can block on a
// reconnecting connection, so they run off the caller's goroutine.
func (n *Notifier) ObservationProcessed(obs session.Observation) {
	n.hub.BroadcastRecognition(sse.RecognitionEvent{
		Name:      obs.Name,
		Score:     obs.Score,
		Recorded:  obs.Recorded,
		Timestamp: obs.At,
	})

	if !obs.Recorded {
		return
	}
	go n.publishRecorded(obs)
}

func (n *Notifier) publishRecorded(obs session.Observation) {
	if n.attendance != nil {
		n.attendance.PublishAttendance(mqtt.AttendanceEvent{
			Name:      obs.Name,
			Date:      obs.At.Format("2006-01-02"),
			Time:      obs.At.Format("15:04:05"),
			Score:     obs.Score,
			Timestamp: obs.At,
		})
	}
	if n.presence != nil {
		n.presence.PublishPresence(obs.Name, true)
	}
}
