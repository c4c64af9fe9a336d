package job

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"SheetSend/internal/models"
)

// ErrJobNotFound covers both unknown job ids and jobs already claimed for
// streaming, so a job id is good for exactly one run.
var ErrJobNotFound = errors.New("job not found or already processed")

// Manager owns the in-memory job registry. Jobs exist only between Create
// and the end of their progress stream; nothing is persisted.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func NewManager() *Manager {
	return &Manager{jobs: make(map[string]*models.Job)}
}

// CreateParams are the typed job parameters supplied at creation.
type CreateParams struct {
	SheetPath       string
	StoredName      string
	OriginalName    string
	SubjectTemplate string
	BodyTemplate    string
	Headers         []string
	SendInterval    time.Duration
	Attachments     []models.FileAttachment
}

func (p CreateParams) validate() error {
	switch {
	case p.SheetPath == "":
		return errors.New("missing sheet file path")
	case p.SubjectTemplate == "":
		return errors.New("missing subject template")
	case p.BodyTemplate == "":
		return errors.New("missing body template")
	case len(p.Headers) == 0:
		return errors.New("missing header list")
	case p.OriginalName == "":
		return errors.New("missing original sheet name")
	case p.SendInterval < 0:
		return errors.New("send interval must not be negative")
	}
	return nil
}

// Create validates the parameters, checks the referenced sheet file exists
// and registers a pending job. The sheet itself is not read until the
// progress stream opens.
func (m *Manager) Create(p CreateParams) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	if _, err := os.Stat(p.SheetPath); err != nil {
		return "", fmt.Errorf("sheet file not found: %s", p.SheetPath)
	}

	j := &models.Job{
		ID:              uuid.NewString(),
		SheetPath:       p.SheetPath,
		StoredName:      p.StoredName,
		OriginalName:    p.OriginalName,
		SubjectTemplate: p.SubjectTemplate,
		BodyTemplate:    p.BodyTemplate,
		Headers:         p.Headers,
		SendInterval:    p.SendInterval,
		Attachments:     p.Attachments,
		Status:          models.StatusPending,
		CreatedAt:       time.Now(),
	}

	m.mu.Lock()
	m.jobs[j.ID] = j
	m.mu.Unlock()

	return j.ID, nil
}

// Claim transitions a pending job to processing and hands it to the caller.
// Any job not in the pending state, including ids never registered, yields
// ErrJobNotFound.
func (m *Manager) Claim(id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.Status != models.StatusPending {
		return nil, ErrJobNotFound
	}
	j.Status = models.StatusProcessing
	return j, nil
}

// Finish records the job's terminal status. Claim reads Status under the
// same mutex, so a double-start racing a finishing run sees a consistent
// value.
func (m *Manager) Finish(id string, status models.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.Status = status
	}
}

// Remove deletes the job record. Called unconditionally when its stream ends.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
}
