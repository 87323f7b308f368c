package model

type StreamEventType string

const (
	StreamEventStatus  StreamEventType = "status"
	StreamEventOutputs StreamEventType = "outputs"
	StreamEventDone    StreamEventType = "done"
	StreamEventError   StreamEventType = "error"
)

// StreamEvent is one frame pushed to a job subscriber.
type StreamEvent struct {
	Type StreamEventType
	Data any
}
