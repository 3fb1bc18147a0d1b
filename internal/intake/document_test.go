package intake

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

const note = `Patient Name: Jane Doe
SSN: 123-45-6789
DOB: 03/14/1980
History of coronary artery disease.`

func TestCreateFromDocument(t *testing.T) {
	e := newEnv(t, true)

	res, err := e.svc.CreateFromDocument(context.Background(), strings.NewReader(note), "note.txt", "text/plain")
	require.NoError(t, err)

	assert.Equal(t, DocumentStatusSuccess, res.Status)
	assert.True(t, res.Processed)
	assert.Equal(t, "Cardiac", res.AutoExtracted.Condition)
	assert.Equal(t, 3, res.AutoExtracted.PIICount)
	assert.Equal(t, 0.95, res.ConfidenceScores.Name)
	assert.Equal(t, 0.98, res.ConfidenceScores.SSN)

	// Always inline, even with a queue, and only redacted text reaches the run.
	assert.Empty(t, e.queue.payloads)
	require.Len(t, e.proc.requests, 1)
	text := e.proc.requests[0].DocumentText
	assert.NotContains(t, text, "Jane Doe")
	assert.NotContains(t, text, "123-45-6789")
	assert.Contains(t, text, "coronary artery disease")

	p, err := e.patients.Get(context.Background(), res.PatientID)
	require.NoError(t, err)
	assert.Equal(t, SourceDocumentUpload, p.Source)
	assert.Equal(t, "tok_name_Jane Doe", p.NameToken)
	assert.Equal(t, models.PriorityNormal, p.Priority)
}

func TestCreateFromDocument_InsufficientPII(t *testing.T) {
	e := newEnv(t, true)

	res, err := e.svc.CreateFromDocument(context.Background(), strings.NewReader("Follow-up for asthma, no identifiers."), "note.txt", "")
	require.NoError(t, err)
	assert.Equal(t, DocumentStatusInsufficientData, res.Status)
	assert.Equal(t, []string{"name", "ssn"}, res.Required)

	n, _ := e.patients.Count(context.Background())
	assert.Zero(t, n)
}

func TestCreateFromDocument_UnsupportedType(t *testing.T) {
	e := newEnv(t, true)
	_, err := e.svc.CreateFromDocument(context.Background(), strings.NewReader("x"), "scan.png", "image/png")
	assert.ErrorIs(t, err, models.ErrValidation)
}
