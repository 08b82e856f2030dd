package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davenfroberg/gpta-backend/internal/pkg/ctxutil"
	"github.com/davenfroberg/gpta-backend/internal/pkg/httpx"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

// Client speaks the index's records API: upserts carry raw text and the
// index embeds server-side, searches take query text directly.
type Client interface {
	DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error)
	UpsertRecords(ctx context.Context, host, namespace string, records []Record) error
	Search(ctx context.Context, host, namespace string, req SearchRequest) (*SearchResponse, error)
}

type Config struct {
	APIKey     string
	APIVersion string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Pinecone API key")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "2025-04"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.pinecone.io"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &client{
		log:  log.With("client", "PineconeClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// -------------------- Control plane --------------------

type IndexDescription struct {
	Name   string `json:"name"`
	Host   string `json:"host"`
	Metric string `json:"metric"`
	Status struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

func (c *client) DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error) {
	indexName = strings.TrimSpace(indexName)
	if indexName == "" {
		return nil, fmt.Errorf("indexName required")
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/indexes/" + indexName
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "GET", u, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	raw, err := c.roundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("pinecone describe_index: %w", err)
	}

	var out IndexDescription
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pinecone describe_index decode: %w", err)
	}
	if strings.TrimSpace(out.Host) == "" {
		return nil, fmt.Errorf("pinecone describe_index returned empty host")
	}
	return &out, nil
}

// -------------------- Data plane --------------------

// Record is one upsert row. ID becomes the record's _id; Fields carries the
// text to embed plus filterable metadata.
type Record struct {
	ID     string
	Fields map[string]any
}

func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		flat[k] = v
	}
	flat["_id"] = r.ID
	return json.Marshal(flat)
}

func (c *client) UpsertRecords(ctx context.Context, host, namespace string, records []Record) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("host required")
	}
	if len(records) == 0 {
		return nil
	}

	// Upsert body is NDJSON, one record per line.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}

	u := "https://" + host + "/records/namespaces/" + namespace + "/upsert"
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", u, &buf)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-ndjson")

	if _, err := c.roundTrip(req); err != nil {
		return fmt.Errorf("pinecone upsert_records: %w", err)
	}
	return nil
}

type SearchRequest struct {
	TopK   int
	Filter map[string]any
	Text   string
}

type searchWire struct {
	Query struct {
		TopK   int            `json:"top_k"`
		Filter map[string]any `json:"filter,omitempty"`
		Inputs struct {
			Text string `json:"text"`
		} `json:"inputs"`
	} `json:"query"`
}

type Hit struct {
	ID     string         `json:"_id"`
	Score  float64        `json:"_score"`
	Fields map[string]any `json:"fields"`
}

type SearchResponse struct {
	Result struct {
		Hits []Hit `json:"hits"`
	} `json:"result"`
}

func (c *client) Search(ctx context.Context, host, namespace string, sr SearchRequest) (*SearchResponse, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("host required")
	}
	if sr.TopK <= 0 {
		sr.TopK = 10
	}
	if strings.TrimSpace(sr.Text) == "" {
		return nil, fmt.Errorf("search text required")
	}

	var wire searchWire
	wire.Query.TopK = sr.TopK
	wire.Query.Filter = sr.Filter
	wire.Query.Inputs.Text = sr.Text

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(wire); err != nil {
		return nil, err
	}

	u := "https://" + host + "/records/namespaces/" + namespace + "/search"
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", u, &buf)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.roundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("pinecone search: %w", err)
	}

	var out SearchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pinecone search decode: %w", err)
	}
	return &out, nil
}

// -------------------- helpers --------------------

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "pinecone: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("pinecone http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("X-Pinecone-Api-Version", c.cfg.APIVersion)
}

// roundTrip sends the request with retry on throttling and 5xx. Request
// bodies are buffered by the callers, so a retry re-sends the same bytes.
func (c *client) roundTrip(req *http.Request) ([]byte, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	backoff := 1 * time.Second
	for attempt := 0; ; attempt++ {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, raw, err := c.once(req)
		if err == nil {
			return raw, nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("Pinecone request retrying",
			"url", req.URL.Path,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *client) once(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
