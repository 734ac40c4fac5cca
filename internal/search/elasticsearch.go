package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/config"
	"example.com/premeepro/production/internal/models"
)

// JobDocument is the searchable projection of a job
type JobDocument struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id,omitempty"`
	OrderNumber    string     `json:"order_number"`
	CustomerName   string     `json:"customer_name"`
	ProductName    string     `json:"product_name"`
	Quantity       int        `json:"quantity"`
	Status         string     `json:"status"`
	TemplateID     string     `json:"template_id,omitempty"`
	ActiveStepID   string     `json:"active_step_id,omitempty"`
	ActiveStepName string     `json:"active_step_name,omitempty"`
	StepNames      []string   `json:"step_names,omitempty"`
	StepsTotal     int        `json:"steps_total"`
	StepsDone      int        `json:"steps_done"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Version        int        `json:"version"`
}

// NewJobDocument projects a job and its ordered steps
func NewJobDocument(job *models.Job, steps []models.JobStep) JobDocument {
	doc := JobDocument{
		ID:           job.ID.String(),
		OrderID:      job.OrderID,
		OrderNumber:  job.OrderNumber,
		CustomerName: job.CustomerName,
		ProductName:  job.ProductName,
		Quantity:     job.Quantity,
		Status:       string(job.Status),
		DueDate:      job.DueDate,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		Version:      job.Version,
		StepsTotal:   len(steps),
	}
	if job.TemplateID != nil {
		doc.TemplateID = job.TemplateID.String()
	}
	for _, s := range steps {
		doc.StepNames = append(doc.StepNames, s.Name)
		if s.Status == models.StepStatusCompleted || s.Status == models.StepStatusSkipped {
			doc.StepsDone++
		}
		if job.ActiveJobStepID != nil && s.ID == *job.ActiveJobStepID {
			doc.ActiveStepID = s.ID.String()
			doc.ActiveStepName = s.Name
		}
	}
	return doc
}

// JobQuery is a full text job search
type JobQuery struct {
	Text     string
	Statuses []models.JobStatus
	From     int
	Size     int
}

// JobSearchResult is one page of search hits
type JobSearchResult struct {
	Total int64         `json:"total"`
	Jobs  []JobDocument `json:"jobs"`
}

// JobIndex maintains the job materialized view
type JobIndex interface {
	IndexJob(ctx context.Context, doc JobDocument) error
	DeleteJob(ctx context.Context, id uuid.UUID, version int) error
	SearchJobs(ctx context.Context, q JobQuery) (*JobSearchResult, error)
	Ping(ctx context.Context) error
}

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	index  string
}

// NewJobIndex creates the Elasticsearch job index, or a no-op index when disabled
func NewJobIndex(cfg config.ElasticConfig) (JobIndex, error) {
	if !cfg.Enabled {
		log.Warn().Msg("Elasticsearch disabled, job search is unavailable")
		return NoopIndex{}, nil
	}
	return NewElasticClient(cfg)
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		index:  config.FormatIndex(cfg, cfg.Index),
	}, nil
}

// IndexJob upserts a job document. Documents are versioned externally with the job
// version, so a stale write loses against a newer one.
func (c *ElasticClient) IndexJob(ctx context.Context, doc JobDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal job document")
	}

	version := doc.Version
	req := esapi.IndexRequest{
		Index:       c.index,
		DocumentID:  doc.ID,
		Body:        bytes.NewReader(body),
		Version:     &version,
		VersionType: "external",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		log.Debug().Str("job_id", doc.ID).Int("version", doc.Version).Msg("skipping stale job document")
		return nil
	}
	if res.IsError() {
		return responseError("index", res.Body)
	}
	return nil
}

// DeleteJob removes a job document
func (c *ElasticClient) DeleteJob(ctx context.Context, id uuid.UUID, version int) error {
	v := version
	req := esapi.DeleteRequest{
		Index:       c.index,
		DocumentID:  id.String(),
		Version:     &v,
		VersionType: "external",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch delete request")
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound, res.StatusCode == http.StatusConflict:
		return nil
	case res.IsError():
		return responseError("delete", res.Body)
	}
	return nil
}

// SearchJobs runs a full text search over order number, customer, product and step names
func (c *ElasticClient) SearchJobs(ctx context.Context, q JobQuery) (*JobSearchResult, error) {
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("search", res.Body)
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source JobDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	out := &JobSearchResult{Total: parsed.Hits.Total.Value, Jobs: make([]JobDocument, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		out.Jobs = append(out.Jobs, h.Source)
	}
	return out, nil
}

// Ping checks the cluster
func (c *ElasticClient) Ping(ctx context.Context) error {
	res, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "failed to ping Elasticsearch")
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.Errorf("Elasticsearch ping returned %s", res.Status())
	}
	return nil
}

func buildQuery(q JobQuery) map[string]interface{} {
	var must []interface{}
	if text := strings.TrimSpace(q.Text); text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": []string{"order_number^3", "customer_name^2", "product_name", "step_names"},
			},
		})
	}

	var filter []interface{}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		filter = append(filter, map[string]interface{}{
			"terms": map[string]interface{}{"status": statuses},
		})
	}

	size := q.Size
	if size <= 0 {
		size = 20
	}

	boolQuery := map[string]interface{}{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	return map[string]interface{}{
		"from":  q.From,
		"size":  size,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []interface{}{map[string]interface{}{"created_at": "desc"}},
	}
}

func responseError(op string, body io.Reader) error {
	var e map[string]interface{}
	if err := json.NewDecoder(body).Decode(&e); err != nil {
		return errors.Wrapf(err, "failed to parse Elasticsearch %s error response", op)
	}
	return errors.Errorf("Elasticsearch %s error: %v", op, e)
}

// ErrSearchDisabled is returned by the no-op index on search
var ErrSearchDisabled = errors.New("search is disabled")

// NoopIndex is used when Elasticsearch is disabled
type NoopIndex struct{}

func (NoopIndex) IndexJob(context.Context, JobDocument) error      { return nil }
func (NoopIndex) DeleteJob(context.Context, uuid.UUID, int) error { return nil }
func (NoopIndex) Ping(context.Context) error                      { return nil }

func (NoopIndex) SearchJobs(context.Context, JobQuery) (*JobSearchResult, error) {
	return nil, ErrSearchDisabled
}
