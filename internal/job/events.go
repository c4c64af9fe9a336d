package job

import "SheetSend/internal/models"

// EventName identifies one kind of progress event. Events for a job form an
// ordered, finite sequence ending in exactly one complete or error event.
type EventName string

const (
	EventJobStarted EventName = "job_started"
	EventDataLoaded EventName = "data_loaded"
	EventProgress   EventName = "progress"
	EventBatchSave  EventName = "batch_save"
	EventComplete   EventName = "complete"
	EventError      EventName = "error"
)

// Event is one tagged record of the progress stream. Data is always one of
// the payload structs below; the wire encoding is the consumer's concern.
type Event struct {
	Name EventName
	Data any
}

// EventSink receives the job's event sequence. Implementations must not
// block the runner; a sink that can no longer deliver should drop events
// rather than return, since the job runs to completion regardless of
// consumer presence.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

type JobStartedPayload struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

type DataLoadedPayload struct {
	TotalRows int `json:"totalRows"`
}

type ProgressPayload struct {
	JobID    string            `json:"jobId"`
	RowIndex int               `json:"rowIndex"` // 1-based
	Email    string            `json:"email"`
	Status   models.RowOutcome `json:"status"`
	Error    string            `json:"error,omitempty"`
}

type BatchSavePayload struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

type CompletePayload struct {
	JobID                 string            `json:"jobId"`
	Message               string            `json:"message"`
	TotalRows             int               `json:"totalRows"`
	SuccessCount          int               `json:"successCount"`
	FailCount             int               `json:"failCount"`
	Errors                []models.RowError `json:"errors"`
	OutputFilePath        string            `json:"outputFilePath"`
	SuggestedDownloadName string            `json:"suggestedDownloadName"`
}

type ErrorPayload struct {
	JobID   string `json:"jobId,omitempty"`
	Message string `json:"message"`
}
