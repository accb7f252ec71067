package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dbsmedya/contentsync/internal/config"
	"github.com/dbsmedya/contentsync/internal/logger"
	"github.com/dbsmedya/contentsync/internal/record"
)

// HTTPStore implements Store against the backoffice REST API:
//
//	GET    {base}{prefix}/{collection}
//	POST   {base}{prefix}/{collection}
//	PUT    {base}{prefix}/{collection}/{id}
//	DELETE {base}{prefix}/{collection}/{id}
type HTTPStore struct {
	baseURL    *url.URL
	prefix     string
	token      string
	maxRetries int
	retryDelay time.Duration
	maxBody    int64
	client     *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// NewHTTPStore creates a client from backend configuration.
func NewHTTPStore(cfg *config.BackendConfig, log *logger.Logger) (*HTTPStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend config is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base_url %q", cfg.BaseURL)
	}

	prefix := strings.TrimRight(cfg.APIPrefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = config.DefaultMaxResponseBytes
	}

	s := &HTTPStore{
		baseURL:    base,
		prefix:     prefix,
		token:      cfg.Token,
		maxRetries: cfg.MaxRetries,
		retryDelay: 250 * time.Millisecond,
		maxBody:    maxBody,
		client:     &http.Client{Timeout: timeout},
		logger:     log,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return s, nil
}

// ListRecords fetches a collection. Transport failures are retried up to max_retries times.
func (s *HTTPStore) ListRecords(ctx context.Context, collection string) ([]record.Raw, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warnw("Retrying list",
				"collection", collection,
				"attempt", attempt,
				"error", lastErr)
			if err := s.backoff(ctx, attempt); err != nil {
				return nil, transportError("list cancelled", err)
			}
		}

		body, err := s.execute(ctx, http.MethodGet, s.collectionPath(collection), nil)
		if err == nil {
			return decodeList(body)
		}
		lastErr = err
		if !Retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (s *HTTPStore) backoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(s.retryDelay * time.Duration(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CreateRecord posts a new record.
func (s *HTTPStore) CreateRecord(ctx context.Context, collection string, fields map[string]any) (record.Raw, error) {
	if err := ValidateCreate(fields); err != nil {
		return nil, err
	}
	body, err := s.execute(ctx, http.MethodPost, s.collectionPath(collection), fields)
	if err != nil {
		return nil, err
	}
	return decodeOne(body)
}

// UpdateRecord replaces the fields of record id.
func (s *HTTPStore) UpdateRecord(ctx context.Context, collection, id string, fields map[string]any) (record.Raw, error) {
	if id == "" {
		return nil, validationError("update requires a record id", nil)
	}
	if err := ValidateUpdate(fields); err != nil {
		return nil, err
	}
	body, err := s.execute(ctx, http.MethodPut, s.recordPath(collection, id), fields)
	if err != nil {
		return nil, err
	}
	return decodeOne(body)
}

// DeleteRecord removes record id.
func (s *HTTPStore) DeleteRecord(ctx context.Context, collection, id string) error {
	if id == "" {
		return validationError("delete requires a record id", nil)
	}
	_, err := s.execute(ctx, http.MethodDelete, s.recordPath(collection, id), nil)
	return err
}

func (s *HTTPStore) collectionPath(collection string) string {
	return s.prefix + "/" + url.PathEscape(collection)
}

func (s *HTTPStore) recordPath(collection, id string) string {
	return s.collectionPath(collection) + "/" + url.PathEscape(id)
}

func (s *HTTPStore) execute(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, transportError("rate limiter wait failed", err)
		}
	}

	request, err := s.newRequest(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	response, err := s.client.Do(request)
	if err != nil {
		return nil, transportError(fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer response.Body.Close()

	// One byte past the cap tells a full body from an oversized one.
	body, err := io.ReadAll(io.LimitReader(response.Body, s.maxBody+1))
	if err != nil {
		return nil, transportError("failed to read backend response body", err)
	}
	if int64(len(body)) > s.maxBody && response.StatusCode < http.StatusBadRequest {
		return nil, tooLargeError(response.StatusCode, s.maxBody)
	}

	s.logger.Debugw("Backend request",
		"method", method,
		"path", path,
		"status", response.StatusCode,
		"duration", time.Since(started))

	if response.StatusCode >= http.StatusBadRequest {
		return nil, classifyStatusError(response.StatusCode, body)
	}
	return body, nil
}

func (s *HTTPStore) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	// path segments are already escaped; keep ids containing "/" intact.
	target := *s.baseURL
	target.RawPath = s.baseURL.EscapedPath() + path
	unescaped, err := url.PathUnescape(target.RawPath)
	if err != nil {
		return nil, internalError("invalid request path", err)
	}
	target.Path = unescaped

	var bodyReader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, internalError("failed to encode request body", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, target.String(), bodyReader)
	if err != nil {
		return nil, internalError("failed to create backend request", err)
	}

	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		request.Header.Set("Authorization", "Bearer "+s.token)
	}
	return request, nil
}

// decodeList accepts a bare JSON array or an envelope holding it under data, items
// or results. An empty body or a null array is not a list.
func decodeList(body []byte) ([]record.Raw, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, malformedError("backend list response is empty", nil)
	}

	if trimmed[0] == '[' {
		var items []record.Raw
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, malformedError("backend list is not an array of objects", err)
		}
		return nonNil(items), nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, malformedError("backend list response is not JSON", err)
	}
	for _, key := range []string{"data", "items", "results"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '[' {
			return nil, malformedError(fmt.Sprintf("backend list field %q is not an array", key), nil)
		}
		var items []record.Raw
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, malformedError(fmt.Sprintf("backend list field %q is not an array of objects", key), err)
		}
		return nonNil(items), nil
	}
	return nil, malformedError("backend list response has no array", nil)
}

// decodeOne accepts the stored record or an envelope holding it under data.
func decodeOne(body []byte) (record.Raw, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return record.Raw{}, nil
	}

	var obj record.Raw
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, malformedError("backend response is not a JSON object", err)
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		return record.Raw(inner), nil
	}
	return obj, nil
}

func nonNil(items []record.Raw) []record.Raw {
	if items == nil {
		return []record.Raw{}
	}
	return items
}
