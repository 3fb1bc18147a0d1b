package intake

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/nikhilbhutani/vaultmind/internal/queue"
)

func TestBatchCreate(t *testing.T) {
	e := newEnv(t, true)

	res := e.svc.BatchCreate(context.Background(), []CreateInput{
		{Name: "A One", SSN: "111-11-1111"},
		{Name: "", SSN: "222-22-2222"},
		{Name: "C Three", SSN: "333-33-3333", Priority: "high"},
	})

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, res.PatientIDs, 2)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Record 2")

	require.Len(t, e.queue.payloads, 2)
	assert.Equal(t, queue.TriggerBatch, e.queue.payloads[0].Trigger)

	p, err := e.patients.Get(context.Background(), res.PatientIDs[1])
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, p.Priority)
	assert.Equal(t, SourceBatch, p.Source)
}

func TestUploadCSV(t *testing.T) {
	e := newEnv(t, true)
	csv := "Name,SSN,DOB,Condition,Department,Priority\n" +
		"Jane Doe,123-45-6789,03/14/1980,Diabetes,Endocrinology,URGENT\n" +
		"No Ssn,,01/01/1970,Asthma,,\n" +
		"John Roe,987-65-4321,,,,\n"

	res, err := e.svc.UploadCSV(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.BatchID, "batch-"))
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"Row 3: Missing required fields (name, ssn)"}, res.Errors)

	jane, err := e.patients.Get(context.Background(), res.PatientIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Endocrinology", jane.Department)
	assert.Equal(t, SourceBatchUpload, jane.Source)

	john, err := e.patients.Get(context.Background(), res.PatientIDs[1])
	require.NoError(t, err)
	assert.Equal(t, "Unknown", john.Condition)
	assert.Empty(t, john.DOBToken)
}

func TestUploadCSV_CapsReportedErrors(t *testing.T) {
	e := newEnv(t, true)
	var b strings.Builder
	b.WriteString("name,ssn\n")
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, "Person %d,\n", i)
	}

	res, err := e.svc.UploadCSV(context.Background(), strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, 15, res.Failed)
	assert.Len(t, res.Errors, maxReportedErrors)
	assert.Zero(t, res.Created)
}

func TestUploadCSV_Empty(t *testing.T) {
	e := newEnv(t, true)
	_, err := e.svc.UploadCSV(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, models.ErrValidation)
}
