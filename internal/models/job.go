package models

import "time"

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job is one spreadsheet-driven send operation. It lives in memory only,
// from creation until its progress stream terminates.
type Job struct {
	ID              string
	SheetPath       string // absolute path of the stored workbook
	StoredName      string // timestamped filename under the uploads dir
	OriginalName    string // filename as uploaded, used for the download suggestion
	SubjectTemplate string
	BodyTemplate    string
	Headers         []string
	SendInterval    time.Duration
	Attachments     []FileAttachment

	Status    JobStatus
	CreatedAt time.Time
}

// FileAttachment is a static attachment shared by every message of a job.
// Path points at a temp file that is deleted when the job finishes.
type FileAttachment struct {
	Filename string
	Path     string
}

// InlineAttachment is a base64 image extracted from one row's rendered body,
// referenced from the HTML by its content id.
type InlineAttachment struct {
	ContentID   string
	ContentType string
	Base64      string
}

type RowOutcome string

const (
	OutcomeSkipped          RowOutcome = "skipped_previously_success"
	OutcomeValidationFailed RowOutcome = "validation_failed"
	OutcomeSuccess          RowOutcome = "success"
	OutcomeSendFailed       RowOutcome = "send_failed"
)

// RowError records one failed row for the terminal complete event.
type RowError struct {
	RowIndex int    `json:"rowIndex"` // 1-based for display
	Email    string `json:"email"`
	Error    string `json:"error"`
}
