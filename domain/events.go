package domain

// EventType tags a stream event on the wire.
type EventType string

const (
	EventProgress        EventType = "progress"
	EventContentDelta    EventType = "content_delta"
	EventMessageComplete EventType = "message_complete"
	EventResult          EventType = "result"
	EventError           EventType = "error"
)

// Event is one item of an ingestion or generation stream. A stream ends with
// exactly one terminal event and nothing follows it.
type Event interface {
	Type() EventType
	event()
}

type ProgressEvent struct {
	Step    string
	Message string
	Percent int
}

type ContentDeltaEvent struct {
	Text string
}

type MessageCompleteEvent struct {
	FullText   string
	References []Reference
}

type ResultEvent struct {
	Chunks  []DocumentChunk
	Summary ChunkSummary
}

// ErrorEvent ends a failed stream. Err keeps the typed cause for in-process
// consumers; only Message crosses the wire.
type ErrorEvent struct {
	Message string
	Err     error
}

func (ProgressEvent) Type() EventType        { return EventProgress }
func (ContentDeltaEvent) Type() EventType    { return EventContentDelta }
func (MessageCompleteEvent) Type() EventType { return EventMessageComplete }
func (ResultEvent) Type() EventType          { return EventResult }
func (ErrorEvent) Type() EventType           { return EventError }

func (ProgressEvent) event()        {}
func (ContentDeltaEvent) event()    {}
func (MessageCompleteEvent) event() {}
func (ResultEvent) event()          {}
func (ErrorEvent) event()           {}

// IsTerminal reports whether e closes its stream.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case MessageCompleteEvent, ResultEvent, ErrorEvent:
		return true
	default:
		return false
	}
}

// NewErrorEvent converts err into the terminal error event.
func NewErrorEvent(err error) ErrorEvent {
	return ErrorEvent{Message: err.Error(), Err: err}
}
