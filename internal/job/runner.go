package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"SheetSend/internal/email"
	"SheetSend/internal/htmlmail"
	"SheetSend/internal/metrics"
	"SheetSend/internal/models"
	"SheetSend/internal/render"
	"SheetSend/internal/sheet"
)

// Rows between workbook flushes. Bounds data loss on abrupt termination to
// one partial batch.
const saveBatchSize = 20

// Status cell markers written back into the sheet.
const (
	markerSuccess     = "Success"
	markerFormatError = "Format Error"
	markerFailed      = "Failed: "
)

const timestampLayout = "2006-01-02 15:04:05"

var (
	ErrNoDataRows        = errors.New("no data rows to process in sheet")
	ErrNoRecipientColumn = errors.New(`could not find "email" header in sheet`)
)

// Transport delivers one message, or reports why it could not.
type Transport interface {
	Send(email.Message) error
}

// SheetStore is the mutable spreadsheet a job runs over. *sheet.Sheet is the
// real implementation; tests substitute an in-memory one.
type SheetStore interface {
	Headers() []string
	Rows() []map[string]string
	ColumnIndex(name string) int
	FindHeader(name string) (string, bool)
	SetCell(columnName string, rowIndex int, value string) error
	Save() error
	Close() error
}

// Runner executes claimed jobs: loads the sheet, walks the rows strictly in
// order, writes outcomes back, and emits the progress event sequence.
type Runner struct {
	Jobs      *Manager
	Transport Transport
	Log       *zap.Logger
	OpenSheet func(path string) (SheetStore, error)
}

func NewRunner(jobs *Manager, transport Transport, log *zap.Logger) *Runner {
	return &Runner{
		Jobs:      jobs,
		Transport: transport,
		Log:       log,
		OpenSheet: func(path string) (SheetStore, error) {
			return sheet.Load(path)
		},
	}
}

// Run drives a claimed job to its terminal event. Whatever happens, the
// job's uploaded attachments are deleted and the job record removed before
// Run returns; a job id is never streamable twice.
func (r *Runner) Run(ctx context.Context, j *models.Job, sink EventSink) {
	defer r.cleanup(j)

	sink.Emit(Event{EventJobStarted, JobStartedPayload{
		JobID:   j.ID,
		Message: "Email sending task has started...",
	}})

	if err := r.process(ctx, j, sink); err != nil {
		r.Jobs.Finish(j.ID, models.StatusFailed)
		metrics.JobsFailed.Inc()
		r.Log.Error("job failed",
			zap.String("job_id", j.ID),
			zap.Error(err),
		)
		sink.Emit(Event{EventError, ErrorPayload{JobID: j.ID, Message: err.Error()}})
		return
	}

	r.Jobs.Finish(j.ID, models.StatusCompleted)
	metrics.JobsCompleted.Inc()
}

func (r *Runner) process(ctx context.Context, j *models.Job, sink EventSink) error {
	sh, err := r.OpenSheet(j.SheetPath)
	if err != nil {
		return fmt.Errorf("load sheet: %w", err)
	}
	defer sh.Close()

	rows := sh.Rows()
	sink.Emit(Event{EventDataLoaded, DataLoadedPayload{TotalRows: len(rows)}})
	if len(rows) == 0 {
		return ErrNoDataRows
	}

	emailHeader, ok := sh.FindHeader("email")
	if !ok {
		return ErrNoRecipientColumn
	}
	titleHeader, _ := sh.FindHeader("title")

	// Burst 1 gives the exact pacing contract: the first send attempt is
	// never delayed, successive attempts are at least the interval apart.
	// Skipped and invalid rows never consume a token.
	limiter := rate.NewLimiter(rate.Inf, 1)
	if j.SendInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(j.SendInterval), 1)
	}

	successCount := 0
	failCount := 0
	var rowErrors []models.RowError

	for i, row := range rows {
		res := r.processRow(ctx, j, sh, i, row, emailHeader, titleHeader, limiter)

		switch res.outcome {
		case models.OutcomeSuccess:
			successCount++
		case models.OutcomeValidationFailed, models.OutcomeSendFailed:
			failCount++
			rowErrors = append(rowErrors, models.RowError{
				RowIndex: i + 1,
				Email:    res.email,
				Error:    res.errMsg,
			})
		}

		sink.Emit(Event{EventProgress, ProgressPayload{
			JobID:    j.ID,
			RowIndex: i + 1,
			Email:    res.email,
			Status:   res.outcome,
			Error:    res.errMsg,
		}})

		if (i+1)%saveBatchSize == 0 || i+1 == len(rows) {
			if err := sh.Save(); err != nil {
				return fmt.Errorf("save sheet: %w", err)
			}
			sink.Emit(Event{EventBatchSave, BatchSavePayload{
				JobID:   j.ID,
				Message: fmt.Sprintf("Processed %d rows, sheet progress saved.", i+1),
			}})
		}
	}

	if rowErrors == nil {
		rowErrors = []models.RowError{}
	}
	sink.Emit(Event{EventComplete, CompletePayload{
		JobID:                 j.ID,
		Message:               "Email processing completed",
		TotalRows:             len(rows),
		SuccessCount:          successCount,
		FailCount:             failCount,
		Errors:                rowErrors,
		OutputFilePath:        "/uploads/" + j.StoredName,
		SuggestedDownloadName: suggestedName(j),
	}})

	return nil
}

type rowResult struct {
	outcome models.RowOutcome
	email   string
	errMsg  string
}

// processRow decides one row's outcome: skip, validation failure, send, or
// transport failure. A failed row never aborts the job.
func (r *Runner) processRow(
	ctx context.Context,
	j *models.Job,
	sh SheetStore,
	rowIndex int,
	row map[string]string,
	emailHeader, titleHeader string,
	limiter *rate.Limiter,
) rowResult {
	// Rows already marked successful by a previous run stay untouched, so
	// re-running over a partially completed sheet never double-sends.
	if sh.ColumnIndex(sheet.StatusColumn) >= 0 {
		if strings.EqualFold(strings.TrimSpace(row[sheet.StatusColumn]), "success") {
			metrics.RowsSkipped.Inc()
			return rowResult{outcome: models.OutcomeSkipped, email: row[emailHeader]}
		}
	}

	recipient := strings.TrimSpace(row[emailHeader])
	if recipient == "" || !strings.Contains(recipient, "@") {
		metrics.RowsFailed.Inc()
		display := recipient
		if display == "" {
			display = "empty email"
		}
		r.writeOutcome(j, sh, rowIndex, markerFormatError)
		return rowResult{
			outcome: models.OutcomeValidationFailed,
			email:   recipient,
			errMsg:  fmt.Sprintf("Row %d (%s): invalid or empty email address.", rowIndex+1, display),
		}
	}

	if err := limiter.Wait(ctx); err != nil {
		metrics.RowsFailed.Inc()
		r.writeOutcome(j, sh, rowIndex, markerFailed+truncate(err.Error(), 100))
		return rowResult{outcome: models.OutcomeSendFailed, email: recipient, errMsg: err.Error()}
	}

	subject := render.Subject(j.SubjectTemplate, j.Headers, row, titleHeader)
	body := render.Render(j.BodyTemplate, j.Headers, row)

	safeBody, err := htmlmail.Normalize(body)
	var inline []models.InlineAttachment
	if err == nil {
		safeBody, inline, err = htmlmail.ExtractInlineImages(safeBody, j.ID, rowIndex)
	}
	if err == nil {
		err = r.Transport.Send(email.Message{
			To:      recipient,
			Subject: subject,
			HTML:    safeBody,
			Files:   j.Attachments,
			Inline:  inline,
		})
	}
	if err != nil {
		metrics.RowsFailed.Inc()
		r.writeOutcome(j, sh, rowIndex, markerFailed+truncate(err.Error(), 100))
		return rowResult{outcome: models.OutcomeSendFailed, email: recipient, errMsg: err.Error()}
	}

	metrics.RowsSent.Inc()
	r.writeOutcome(j, sh, rowIndex, markerSuccess)
	return rowResult{outcome: models.OutcomeSuccess, email: recipient}
}

// writeOutcome records the row's status marker and timestamp. Sheets without
// the columns pass through untouched; a cell write failure is logged but
// never fails the row.
func (r *Runner) writeOutcome(j *models.Job, sh SheetStore, rowIndex int, status string) {
	if err := sh.SetCell(sheet.StatusColumn, rowIndex, status); err != nil {
		r.Log.Warn("failed to write status cell",
			zap.String("job_id", j.ID),
			zap.Int("row", rowIndex),
			zap.Error(err),
		)
	}
	if err := sh.SetCell(sheet.SendTimeColumn, rowIndex, time.Now().Format(timestampLayout)); err != nil {
		r.Log.Warn("failed to write send_time cell",
			zap.String("job_id", j.ID),
			zap.Int("row", rowIndex),
			zap.Error(err),
		)
	}
}

func (r *Runner) cleanup(j *models.Job) {
	for _, att := range j.Attachments {
		if err := os.Remove(att.Path); err != nil && !os.IsNotExist(err) {
			r.Log.Warn("failed to remove attachment",
				zap.String("job_id", j.ID),
				zap.String("path", att.Path),
				zap.Error(err),
			)
		}
	}
	r.Jobs.Remove(j.ID)
	r.Log.Info("job finished and cleaned up", zap.String("job_id", j.ID))
}

// suggestedName prefers the filename as originally uploaded; the stored name
// with its timestamp prefix stripped is the fallback.
func suggestedName(j *models.Job) string {
	if j.OriginalName != "" {
		return j.OriginalName
	}
	prefix, rest, found := strings.Cut(j.StoredName, "-")
	if found && rest != "" && isDigits(prefix) {
		return rest
	}
	return j.StoredName
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
