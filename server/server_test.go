package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"royal/config"
	"royal/logger"
	"royal/metrics"
	"royal/parser"
	"royal/store"
	"royal/types"
)

const script = `// chapter 1
[msg MSG_BTTL_2 [Morgana]]
[s][f 4 10 65535 0 0]Hello world![f 1 3 65535][w][e]
[msg]
[s]broken[e]
[msg PFM_BTTL_2 [Morgana]]
[s][f 5 13 30 15 5]I cant see an exit[e]
`

func newTestServer(t *testing.T, mutate func(*config.Config), withStore bool) (*Server, *bytes.Buffer) {
	t.Helper()
	cfg := config.GetDefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	var logs bytes.Buffer
	opts := Options{
		Config:  cfg,
		Logger:  logger.New(logger.Options{Level: "debug", Output: &logs}),
		Version: "test",
	}
	if withStore {
		st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "royal.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		opts.Store = st
	}
	return New(opts), &logs
}

func do(t *testing.T, s *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRootAndHealth(t *testing.T) {
	s, _ := newTestServer(t, nil, false)

	rec := do(t, s, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var info types.ServiceInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "test", info.Version)
	assert.Contains(t, info.Endpoints, "POST /v1/parse - Parse one message tag-stream")

	rec = do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var health types.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Nil(t, health.Checks)
}

func TestHealthWithStore(t *testing.T) {
	s, _ := newTestServer(t, nil, true)

	rec := do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var health types.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, map[string]string{"store": "pass"}, health.Checks)
}

func TestParse(t *testing.T) {
	s, _ := newTestServer(t, nil, false)

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		content     string
		reason      string
	}{
		{
			name:        "json body",
			contentType: "application/json",
			body:        `{"input": "[msg MSG_BTTL_2 [Morgana]][s][f 4 10 65535 0 0]Hello world![f 1 3 65535][w][e]"}`,
			status:      http.StatusOK,
			content:     "Hello world!",
		},
		{
			name:        "plain text body",
			contentType: "text/plain; charset=utf-8",
			body:        "[msg SYS_SAVE][s]Saved.[e]",
			status:      http.StatusOK,
			content:     "Saved.",
		},
		{
			name:        "structural failure",
			contentType: "text/plain",
			body:        "[msg][s]broken[e]",
			status:      http.StatusUnprocessableEntity,
			reason:      string(parser.ReasonHeaderTooShort),
		},
		{
			name:        "no closing bracket",
			contentType: "application/json",
			body:        `{"input": "[msg MSG_1"}`,
			status:      http.StatusUnprocessableEntity,
			reason:      string(parser.ReasonNoClosingBracket),
		},
		{
			name:        "strict start per request",
			contentType: "application/json",
			body:        `{"input": "[msg MSG_1][f 4 10 1 0 0]no start[e]", "require_start": true}`,
			status:      http.StatusUnprocessableEntity,
			reason:      string(parser.ReasonMissingStartMarker),
		},
		{
			name:        "empty input",
			contentType: "application/json",
			body:        `{"input": "   "}`,
			status:      http.StatusBadRequest,
			reason:      reasonInvalidRequest,
		},
		{
			name:        "malformed json",
			contentType: "application/json",
			body:        `{"input": `,
			status:      http.StatusBadRequest,
			reason:      reasonInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/parse", tt.contentType, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			if tt.status == http.StatusOK {
				var msg parser.Message
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
				assert.Equal(t, tt.content, msg.Content)
				return
			}
			assert.Equal(t, tt.reason, decodeError(t, rec).Reason)
		})
	}
}

func TestParseStrictConfig(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.Parser.RequireSpeakerToken = true }, false)

	rec := do(t, s, http.MethodPost, "/v1/parse", "text/plain", "[msg MSG_1][s]Hi[e]")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(parser.ReasonHeaderTooShort), decodeError(t, rec).Reason)

	rec = do(t, s, http.MethodPost, "/v1/parse", "application/json",
		`{"input": "[msg MSG_1][s]Hi[e]", "require_speaker_token": false}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseBodyTooLarge(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.Server.MaxBodyBytes = 16 }, false)

	rec := do(t, s, http.MethodPost, "/v1/parse", "text/plain", "[msg MSG_1 [Ann]][s]far too long for the limit[e]")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, reasonBodyTooLarge, decodeError(t, rec).Reason)
}

func TestBatch(t *testing.T) {
	s, logs := newTestServer(t, nil, false)

	rec := do(t, s, http.MethodPost, "/v1/parse/batch", "text/plain", script)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp types.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Summary.Records)
	assert.Equal(t, 2, resp.Summary.Parsed)
	assert.Equal(t, 1, resp.Summary.Failed)
	assert.Equal(t, 1, resp.Summary.Awards)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "Hello world!", resp.Results[0].Message.Content)
	assert.Equal(t, 2, resp.Results[0].Line)
	assert.Nil(t, resp.Results[1].Message)
	assert.Equal(t, string(parser.ReasonHeaderTooShort), resp.Results[1].Reason)
	assert.Equal(t, &parser.ConfidantPoints{ConfidantID: 30, Points: 15, ModelID: 5}, resp.Results[2].Message.ConfidantPoints)

	assert.Contains(t, logs.String(), "Failed to parse message")
	assert.Contains(t, logs.String(), "Request handled")
}

func TestBatchUsesConfiguredCharset(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.Batch.Charset = "shift_jis" }, false)

	encoded, _, err := transform.String(japanese.ShiftJIS.NewEncoder(), "[msg MSG_1 [モルガナ]][s]こんにちは[e]\n")
	require.NoError(t, err)

	for _, target := range []string{"/v1/parse/batch", "/v1/parse/batch?charset=sjis"} {
		rec := do(t, s, http.MethodPost, target, "text/plain", encoded)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp types.BatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1, target)
		msg := resp.Results[0].Message
		require.NotNil(t, msg, target)
		assert.Equal(t, "こんにちは", msg.Content, target)
		assert.Equal(t, "モルガナ", msg.Header.CharacterName(), target)
	}
}

func TestBatchUnknownCharset(t *testing.T) {
	s, _ := newTestServer(t, nil, false)

	rec := do(t, s, http.MethodPost, "/v1/parse/batch?charset=klingon-8", "text/plain", script)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, reasonUnknownCharset, decodeError(t, rec).Reason)
}

func TestBatchStoresAndLookup(t *testing.T) {
	s, _ := newTestServer(t, nil, true)

	rec := do(t, s, http.MethodPost, "/v1/parse/batch?charset=UTF8", "text/plain", script)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/v1/messages/PFM_BTTL_2", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var found []types.StoredMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)
	assert.Equal(t, 2, found[0].Record)
	assert.Equal(t, parser.BoxProgress, found[0].Message.Header.BoxType)
	assert.True(t, strings.HasPrefix(found[0].Source, "http:"))

	rec = do(t, s, http.MethodGet, "/v1/messages/NOPE_1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, reasonMessageNotFound, decodeError(t, rec).Reason)

	rec = do(t, s, http.MethodGet, "/v1/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, map[string]int{"Message": 1, "Progress": 1}, stats["by_box_type"])
}

func TestStoreRoutesWithoutStore(t *testing.T) {
	s, _ := newTestServer(t, nil, false)

	for _, path := range []string{"/v1/messages/MSG_1", "/v1/stats"} {
		rec := do(t, s, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, reasonStoreDisabled, decodeError(t, rec).Reason, path)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	s, _ := newTestServer(t, nil, false)
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/messages/{id}", "404")
	before := testutil.ToFloat64(counter)

	do(t, s, http.MethodGet, "/v1/messages/ABC_1", "", "")
	do(t, s, http.MethodGet, "/v1/messages/XYZ_2", "", "")

	assert.Equal(t, before+2, testutil.ToFloat64(counter))

	rec := do(t, s, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "royal_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil, false)

	req := httptest.NewRequest(http.MethodOptions, "/v1/parse", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
