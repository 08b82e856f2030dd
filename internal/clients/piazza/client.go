package piazza

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/davenfroberg/gpta-backend/internal/pkg/ctxutil"
	"github.com/davenfroberg/gpta-backend/internal/pkg/httpx"
	"github.com/davenfroberg/gpta-backend/internal/platform/envutil"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

// Client wraps the forum's RPC endpoint. Sessions are cookie-based; Login is
// called lazily before the first authenticated call.
//
// The client is not safe for concurrent use; the forum rate limit makes the
// callers sequential anyway.
type Client interface {
	Login(ctx context.Context) error
	Feed(ctx context.Context, networkID string) (*Feed, error)
	GetPost(ctx context.Context, networkID, postID string) (*PostNode, error)
	CreatePost(ctx context.Context, networkID string, req CreatePostRequest) (*PostNode, error)
	UserNames(ctx context.Context, networkID string, ids []string) (map[string]string, error)
}

type Config struct {
	BaseURL    string
	Email      string
	Password   string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:    envutil.Str("PIAZZA_BASE_URL", "https://piazza.com"),
		Email:      strings.TrimSpace(os.Getenv("PIAZZA_EMAIL")),
		Password:   strings.TrimSpace(os.Getenv("PIAZZA_PASSWORD")),
		Timeout:    envutil.Duration("PIAZZA_TIMEOUT", 30*time.Second),
		MaxRetries: envutil.Int("PIAZZA_MAX_RETRIES", 3),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Email == "" || cfg.Password == "" {
		return nil, fmt.Errorf("missing PIAZZA_EMAIL or PIAZZA_PASSWORD")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://piazza.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	return &client{
		log:        log.With("client", "PiazzaClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Jar: jar},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client

	mu       sync.Mutex
	loggedIn bool
}

type rpcRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  any             `json:"error"`
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "piazza: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("piazza http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *client) loginLocked(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}
	var out json.RawMessage
	err := c.call(ctx, "user.login", map[string]any{
		"email": c.cfg.Email,
		"pass":  c.cfg.Password,
	}, &out)
	if err != nil {
		return fmt.Errorf("piazza login: %w", err)
	}
	c.loggedIn = true
	c.log.Info("Logged into forum")
	return nil
}

func (c *client) ensureLogin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *client) Feed(ctx context.Context, networkID string) (*Feed, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}
	var out Feed
	err := c.call(ctx, "network.get_my_feed", map[string]any{
		"nid":    networkID,
		"offset": 0,
		"limit":  -1,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("piazza feed nid=%s: %w", networkID, err)
	}
	return &out, nil
}

func (c *client) GetPost(ctx context.Context, networkID, postID string) (*PostNode, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}
	var out PostNode
	err := c.call(ctx, "content.get", map[string]any{
		"nid": networkID,
		"cid": postID,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("piazza get_post nid=%s cid=%s: %w", networkID, postID, err)
	}
	return &out, nil
}

func (c *client) CreatePost(ctx context.Context, networkID string, req CreatePostRequest) (*PostNode, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}
	anon := "no"
	if req.Anonymous {
		anon = "stud"
	}
	var out PostNode
	err := c.call(ctx, "content.create", map[string]any{
		"nid":     networkID,
		"type":    req.Type,
		"folders": req.Folders,
		"subject": req.Subject,
		"content": req.Content,
		"anonymous": anon,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("piazza create_post nid=%s: %w", networkID, err)
	}
	return &out, nil
}

func (c *client) UserNames(ctx context.Context, networkID string, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}
	var out []UserInfo
	err := c.call(ctx, "network.get_users", map[string]any{
		"nid": networkID,
		"ids": ids,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("piazza get_users nid=%s: %w", networkID, err)
	}
	names := make(map[string]string, len(out))
	for _, u := range out {
		if strings.TrimSpace(u.ID) != "" {
			names[u.ID] = u.Name
		}
	}
	return names, nil
}

func (c *client) call(ctx context.Context, method string, params map[string]any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; ; attempt++ {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		resp, err := c.callOnce(ctx, method, params, out)
		if err == nil {
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("Forum request retrying",
			"method", method,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
}

func (c *client) callOnce(ctx context.Context, method string, params map[string]any, out any) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(rpcRequest{Method: method, Params: params}); err != nil {
		return nil, err
	}

	u := c.cfg.BaseURL + "/logic/api?method=" + method
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", u, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var rpc rpcResponse
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return resp, fmt.Errorf("piazza decode: %w", err)
	}
	if rpc.Error != nil {
		if s, ok := rpc.Error.(string); ok && strings.TrimSpace(s) != "" {
			return resp, fmt.Errorf("piazza %s: %s", method, s)
		}
		if _, ok := rpc.Error.(bool); !ok {
			b, _ := json.Marshal(rpc.Error)
			if string(b) != "null" && string(b) != "false" {
				return resp, fmt.Errorf("piazza %s: %s", method, string(b))
			}
		}
	}
	if out != nil && len(rpc.Result) > 0 {
		if err := json.Unmarshal(rpc.Result, out); err != nil {
			return resp, fmt.Errorf("piazza %s decode result: %w", method, err)
		}
	}
	return resp, nil
}
