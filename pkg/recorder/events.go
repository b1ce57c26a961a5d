package recorder

// The kinds of notification the recorder emits.
type EventType int

const (
	EventError EventType = iota
	EventRecordingStarted
	EventRecordingStopped
)

func (t EventType) String() string {
	switch t {
	case EventError:
		return "error"
	case EventRecordingStarted:
		return "recording started"
	case EventRecordingStopped:
		return "recording stopped"
	}
	return "unknown"
}

// A notification from the recorder. Err is only set for EventError.
type Event struct {
	Type EventType
	Err  *Error
}

// Size of the event channel. Events beyond this are dropped while nobody listens.
const eventBufferSize = 64

// Queue an event without blocking.
func (r *VoiceRecorder) emit(event Event) {
	select {
	case r.events <- event:
	default:
		r.logger.Warn("event channel full, dropping event", "event", event.Type.String())
	}
}

func (r *VoiceRecorder) emitError(err *Error) {
	r.logger.Error(
		"recorder error",
		"kind", err.Kind.String(),
		"message", err.Message,
		"err", err.Err,
	)
	r.emit(Event{Type: EventError, Err: err})
}
