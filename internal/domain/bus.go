package domain

// EventBus carries inbound events from a platform adapter to the agent loop.
type EventBus interface {
	Publish(ev *Event)
	Subscribe() <-chan *Event
	Close()
}
