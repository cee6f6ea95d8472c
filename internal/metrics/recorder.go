package metrics

import (
	"time"

	"github.com/roelfdiedericks/chatsweep/internal/bus"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
	"github.com/roelfdiedericks/chatsweep/internal/sweeper"
)

// Metric paths written by Attach.
const (
	PathScanDuration   = "scan/duration"
	PathScanResult     = "scan/result"
	PathScanChats      = "scan/chats"
	PathScanCategories = "scan/categories"
	PathDeleteDuration = "delete/duration"
	PathDeleteResult   = "delete/result"
	PathSessionClosed  = "session/closed"
)

// Attach records flow events from b into m. The returned id unsubscribes.
func (m *Manager) Attach(b *bus.Bus) bus.SubscriptionID {
	return b.Subscribe(bus.AllTopics, m.handle)
}

func (m *Manager) handle(e bus.Event) {
	switch data := e.Data.(type) {
	case sweeper.ScanCompleted:
		m.RecordDuration(PathScanDuration, "", time.Duration(data.ElapsedMs)*time.Millisecond)
		m.RecordSuccess(PathScanResult, "")
		m.AddCounter(PathScanChats, "", int64(data.Entries))
		for category, n := range data.Counts {
			m.RecordOutcome(PathScanCategories, "", category, int64(n))
		}
	case sweeper.ScanFailed:
		m.RecordFailure(PathScanResult, "", data.Reason)
	case sweeper.DeleteProgress:
		if data.Outcome.OK() {
			m.RecordSuccess(PathDeleteResult, "")
		} else {
			m.RecordFailure(PathDeleteResult, "", data.Outcome.Message)
		}
	case sweeper.DeleteCompleted:
		m.RecordDuration(PathDeleteDuration, "", time.Duration(data.ElapsedMs)*time.Millisecond)
	default:
		if e.Topic == bus.TopicSessionClosed {
			m.IncrementCounter(PathSessionClosed, "")
			return
		}
		L_trace("metrics: event ignored", "topic", e.Topic)
	}
}
