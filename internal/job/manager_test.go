package job

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SheetSend/internal/models"
)

func tempSheetFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1700000000000-list.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("stub"), 0o644))
	return path
}

func validParams(t *testing.T) CreateParams {
	t.Helper()
	return CreateParams{
		SheetPath:       tempSheetFile(t),
		StoredName:      "1700000000000-list.xlsx",
		OriginalName:    "list.xlsx",
		SubjectTemplate: "Hello {{name}}",
		BodyTemplate:    "<p>Hi {{name}}</p>",
		Headers:         []string{"email", "name"},
		SendInterval:    0,
	}
}

func TestManagerCreateAndClaim(t *testing.T) {
	m := NewManager()

	id, err := m.Create(validParams(t))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	j, err := m.Claim(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, j.Status)
	assert.Equal(t, "list.xlsx", j.OriginalName)
}

func TestManagerClaimIsAtMostOnce(t *testing.T) {
	m := NewManager()

	id, err := m.Create(validParams(t))
	require.NoError(t, err)

	_, err = m.Claim(id)
	require.NoError(t, err)

	_, err = m.Claim(id)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManagerClaimUnknownID(t *testing.T) {
	m := NewManager()

	_, err := m.Claim("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManagerFinish(t *testing.T) {
	m := NewManager()

	id, err := m.Create(validParams(t))
	require.NoError(t, err)
	j, err := m.Claim(id)
	require.NoError(t, err)

	m.Finish(id, models.StatusCompleted)
	assert.Equal(t, models.StatusCompleted, j.Status)

	// Unknown ids are ignored.
	m.Finish("nope", models.StatusFailed)
}

func TestManagerRemove(t *testing.T) {
	m := NewManager()

	id, err := m.Create(validParams(t))
	require.NoError(t, err)

	m.Remove(id)

	_, err = m.Claim(id)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManagerCreateValidation(t *testing.T) {
	m := NewManager()

	tests := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"missing sheet path", func(p *CreateParams) { p.SheetPath = "" }},
		{"missing subject", func(p *CreateParams) { p.SubjectTemplate = "" }},
		{"missing body", func(p *CreateParams) { p.BodyTemplate = "" }},
		{"missing headers", func(p *CreateParams) { p.Headers = nil }},
		{"missing original name", func(p *CreateParams) { p.OriginalName = "" }},
		{"negative interval", func(p *CreateParams) { p.SendInterval = -time.Second }},
		{"sheet file does not exist", func(p *CreateParams) { p.SheetPath = filepath.Join(t.TempDir(), "missing.xlsx") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams(t)
			tt.mutate(&p)
			_, err := m.Create(p)
			assert.Error(t, err)
		})
	}
}
