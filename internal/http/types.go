package http

import (
	"github.com/fyrsmithlabs/clustereval/internal/campaign"
	"github.com/fyrsmithlabs/clustereval/internal/session"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Clusters int    `json:"clusters"`
}

// CreateSessionRequest is the request body for POST /api/v1/sessions.
type CreateSessionRequest struct {
	Annotator string `json:"annotator"`
}

// SelectBatchRequest is the request body for POST /api/v1/sessions/:id/batch.
type SelectBatchRequest struct {
	Batch *int `json:"batch"`
}

// ErrorResponse is returned for rejected session actions. View carries the
// session state after the rejection.
type ErrorResponse struct {
	Error  string        `json:"error"`
	Code   string        `json:"code"`
	Fields []FieldError  `json:"fields,omitempty"`
	View   *session.View `json:"view,omitempty"`
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ProgressResponse is the response body for GET /api/v1/progress.
type ProgressResponse = campaign.Report
