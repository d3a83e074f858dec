package types

import (
	"royal/batch"
	"royal/parser"
)

// ParseRequest is the JSON body accepted by POST /v1/parse
type ParseRequest struct {
	Input string `json:"input"`
	// Optional per-request strictness; nil keeps the server default
	RequireStart        *bool `json:"require_start,omitempty"`
	RequireSpeakerToken *bool `json:"require_speaker_token,omitempty"`
}

// ErrorResponse is returned for every non-2xx response
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// BatchItem is the outcome of one message record in a batch request
type BatchItem struct {
	Index   int             `json:"index"`
	Line    int             `json:"line"`
	Message *parser.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// BatchResponse is returned by POST /v1/parse/batch
type BatchResponse struct {
	Summary batch.Summary `json:"summary"`
	Results []BatchItem   `json:"results"`
}

// StoredMessage is one row returned by GET /v1/messages/{id}
type StoredMessage struct {
	Source  string         `json:"source"`
	Record  int            `json:"record"`
	Message parser.Message `json:"message"`
}

// ServiceInfo describes the running service at GET /
type ServiceInfo struct {
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Status    string   `json:"status"`
	Endpoints []string `json:"endpoints"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string            `json:"status"` // "ok" or "degraded"
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// NewBatchItem converts a batch result into its wire form
func NewBatchItem(result batch.Result) BatchItem {
	item := BatchItem{
		Index:   result.Record.Index,
		Line:    result.Record.Line,
		Message: result.Message,
	}
	if result.Err != nil {
		item.Error = result.Err.Error()
		item.Reason = string(parser.ReasonOf(result.Err))
	}
	return item
}
