package metrics

import (
	"time"

	"phasebot/internal/bus"
)

// Attach subscribes the pipeline metrics to lifecycle notices.
func Attach(nb *bus.NoticeBus) {
	nb.On(bus.NoticeRunStarted, func(bus.Notice) {
		EventsReceived.Inc()
		ActiveRuns.Inc()
	})
	nb.On(bus.NoticeEventIgnored, func(bus.Notice) {
		EventsReceived.Inc()
		EventsIgnored.Inc()
	})
	nb.On(bus.NoticeRunFinished, func(n bus.Notice) {
		ActiveRuns.Dec()
		if outcome, ok := n.Payload["outcome"].(string); ok {
			RunsTotal(outcome).Inc()
		}
	})
	nb.On(bus.NoticePhaseFinished, func(n bus.Notice) {
		phase, _ := n.Payload["phase"].(string)
		if d, ok := n.Payload["duration"].(time.Duration); ok && phase != "" {
			PhaseLatency(phase).Observe(d.Seconds())
		}
	})
	nb.On(bus.NoticeModelRequest, func(n bus.Notice) {
		ModelRequests.Inc()
		if failed, _ := n.Payload["failed"].(bool); failed {
			ModelErrors.Inc()
		}
		if d, ok := n.Payload["duration"].(time.Duration); ok {
			ModelLatency.Observe(d.Seconds())
		}
	})
	nb.On(bus.NoticeModelThrottled, func(n bus.Notice) {
		ModelThrottled.Inc()
		if d, ok := n.Payload["wait"].(time.Duration); ok {
			ThrottleWait.Observe(d.Seconds())
		}
	})
	nb.On(bus.NoticeDescriptionHit, func(bus.Notice) { DescriptionHits.Inc() })
	nb.On(bus.NoticeDescriptionMiss, func(bus.Notice) { DescriptionMiss.Inc() })
	nb.On(bus.NoticeNotesUpdated, func(n bus.Notice) {
		if added, ok := n.Payload["added"].(int); ok {
			NotesUpdated.Add(int64(added))
		}
	})
	nb.On(bus.NoticeNotesAbandoned, func(bus.Notice) { NotesAbandoned.Inc() })
}
