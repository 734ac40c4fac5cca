package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"example.com/premeepro/production/internal/models"
)

func TestNewJobDocument(t *testing.T) {
	jobID := uuid.New()
	tmplID := uuid.New()
	active := uuid.New()
	job := &models.Job{
		Base:            models.Base{ID: jobID},
		OrderNumber:     "ORD-7",
		CustomerName:    "Acme",
		ProductName:     "Jacket",
		Quantity:        3,
		Status:          models.JobStatusInProgress,
		TemplateID:      &tmplID,
		ActiveJobStepID: &active,
		Version:         4,
	}
	steps := []models.JobStep{
		{Base: models.Base{ID: uuid.New()}, Name: "Cut", Order: 1, Status: models.StepStatusCompleted},
		{Base: models.Base{ID: uuid.New()}, Name: "Wash", Order: 2, Status: models.StepStatusSkipped},
		{Base: models.Base{ID: active}, Name: "Sew", Order: 3, Status: models.StepStatusInProgress},
		{Base: models.Base{ID: uuid.New()}, Name: "Pack", Order: 4, Status: models.StepStatusPending},
	}

	doc := NewJobDocument(job, steps)

	assert.Equal(t, jobID.String(), doc.ID)
	assert.Equal(t, tmplID.String(), doc.TemplateID)
	assert.Equal(t, "in_progress", doc.Status)
	assert.Equal(t, active.String(), doc.ActiveStepID)
	assert.Equal(t, "Sew", doc.ActiveStepName)
	assert.Equal(t, []string{"Cut", "Wash", "Sew", "Pack"}, doc.StepNames)
	assert.Equal(t, 4, doc.StepsTotal)
	assert.Equal(t, 2, doc.StepsDone)
	assert.Equal(t, 4, doc.Version)
}

func TestBuildQuery(t *testing.T) {
	q := buildQuery(JobQuery{Text: " ORD-1 ", Statuses: []models.JobStatus{models.JobStatusPending}, From: 20})

	assert.Equal(t, 20, q["from"])
	assert.Equal(t, 20, q["size"])

	boolQuery := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := boolQuery["must"].([]interface{})
	match := must[0].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, "ORD-1", match["query"])

	filter := boolQuery["filter"].([]interface{})
	terms := filter[0].(map[string]interface{})["terms"].(map[string]interface{})
	assert.Equal(t, []string{"pending"}, terms["status"])
}

func TestBuildQueryMatchAll(t *testing.T) {
	q := buildQuery(JobQuery{Size: 5})
	boolQuery := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Empty(t, boolQuery)
	assert.Equal(t, 5, q["size"])
}

func TestNoopIndex(t *testing.T) {
	var idx JobIndex = NoopIndex{}
	ctx := context.Background()

	assert.NoError(t, idx.IndexJob(ctx, JobDocument{}))
	assert.NoError(t, idx.DeleteJob(ctx, uuid.New(), 1))
	_, err := idx.SearchJobs(ctx, JobQuery{})
	assert.ErrorIs(t, err, ErrSearchDisabled)
}
