package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.lumeweb.com/blob-janitor/internal/config"
	"go.uber.org/zap"
)

const maxResponseBytes = 32 << 20

// APIError is a non-2xx answer from the storage API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storage API returned %d: %s", e.StatusCode, e.Message)
}

type SupabaseClient struct {
	baseURL    string
	secretKey  string
	pageSize   int
	maxOffset  int
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	pending    sync.WaitGroup
	metrics    struct {
		requests *prometheus.CounterVec
		latency  *prometheus.HistogramVec
		listed   *prometheus.CounterVec
	}
}

var _ Client = (*SupabaseClient)(nil)

func NewClient(cfg *config.Config, logger *zap.Logger) (*SupabaseClient, error) {
	if cfg.Storage.PageSize <= 0 {
		return nil, fmt.Errorf("invalid storage configuration: page size must be positive")
	}

	timeout := cfg.Storage.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &SupabaseClient{
		baseURL:    strings.TrimRight(cfg.Storage.URL, "/"),
		secretKey:  cfg.Storage.SecretKey,
		pageSize:   cfg.Storage.PageSize,
		maxOffset:  cfg.Storage.MaxOffset,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "storage")),
	}

	client.metrics.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blob_janitor_storage_requests_total",
		Help: "Total number of storage API requests",
	}, []string{"operation", "outcome"})
	client.metrics.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blob_janitor_storage_request_duration_seconds",
		Help:    "Storage API request latency",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"operation"})
	client.metrics.listed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blob_janitor_storage_listed_files_total",
		Help: "Total number of files discovered by recursive listings",
	}, []string{"bucket"})

	if !client.Available() {
		client.logger.Warn("Storage URL or secret key missing or malformed, storage access will be skipped",
			zap.String("url", cfg.Storage.URL),
		)
	}

	return client, nil
}

// Collectors returns the client's metrics for registration.
func (c *SupabaseClient) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.metrics.requests, c.metrics.latency, c.metrics.listed}
}

// Available reports whether the client is configured well enough to attempt a request.
func (c *SupabaseClient) Available() bool {
	return isValidURL(c.baseURL) && strings.TrimSpace(c.secretKey) != ""
}

func (c *SupabaseClient) ListPage(ctx context.Context, bucket, prefix string, limit, offset int) ([]StorageObject, error) {
	if !c.Available() {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = c.pageSize
	}
	if limit > config.MaxPageSize {
		limit = config.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	body := map[string]any{
		"prefix": prefix,
		"limit":  limit,
		"offset": offset,
		"sortBy": map[string]string{"column": "name", "order": "asc"},
	}

	respBody, err := c.do(ctx, "list", http.MethodPost, "/storage/v1/object/list/"+url.PathEscape(bucket), body)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in bucket %s: %w", bucket, err)
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}

	var entries []listEntry
	if err := json.Unmarshal(respBody, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode listing of bucket %s: %w", bucket, err)
	}

	objects := make([]StorageObject, 0, len(entries))
	for _, entry := range entries {
		objects = append(objects, entry.object())
	}
	return objects, nil
}

// ListAllRecursive walks the bucket breadth first from initialPrefix and returns
// files only, each with its full path. A failed page ends pagination of that
// prefix; the walk goes on with the remaining prefixes.
func (c *SupabaseClient) ListAllRecursive(ctx context.Context, bucket, initialPrefix string) []StorageObject {
	if !c.Available() {
		c.logger.Warn("Skipping listing, storage is not configured", zap.String("bucket", bucket))
		return nil
	}

	var files []StorageObject
	queue := []string{initialPrefix}
	visited := map[string]bool{initialPrefix: true}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			c.logger.Warn("Listing cancelled",
				zap.String("bucket", bucket),
				zap.Int("pending_prefixes", len(queue)),
				zap.Error(ctx.Err()),
			)
			break
		}

		prefix := queue[0]
		queue = queue[1:]

		offset := 0
		for {
			page, err := c.ListPage(ctx, bucket, prefix, c.pageSize, offset)
			if err != nil {
				c.logger.Error("Failed to list storage page",
					zap.String("bucket", bucket),
					zap.String("prefix", prefix),
					zap.Int("offset", offset),
					zap.Error(err),
				)
				break
			}

			for _, entry := range page {
				name := strings.TrimSuffix(entry.Path, "/")
				bare := name[strings.LastIndex(name, "/")+1:]
				if bare == "" || bare == EmptyFolderPlaceholder {
					continue
				}

				if entry.IsFolder() {
					next := prefix + name + "/"
					if !visited[next] {
						visited[next] = true
						queue = append(queue, next)
					}
					continue
				}

				entry.Path = prefix + name
				files = append(files, entry)
			}

			if len(page) < c.pageSize {
				break
			}
			offset += c.pageSize
			if offset > c.maxOffset {
				c.logger.Warn("Pagination safety cap reached",
					zap.String("bucket", bucket),
					zap.String("prefix", prefix),
					zap.Int("offset", offset),
				)
				break
			}
		}
	}

	c.metrics.listed.WithLabelValues(bucket).Add(float64(len(files)))
	return files
}

func (c *SupabaseClient) DeleteObjects(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if !c.Available() {
		return ErrStoreUnavailable
	}

	body := map[string][]string{"prefixes": paths}
	if _, err := c.do(ctx, "delete", http.MethodDelete, "/storage/v1/object/"+url.PathEscape(bucket), body); err != nil {
		return fmt.Errorf("failed to delete %d objects from bucket %s: %w", len(paths), bucket, err)
	}
	return nil
}

// DeleteObjectsAsync deletes in the background. The outcome is only logged.
func (c *SupabaseClient) DeleteObjectsAsync(bucket string, paths []string) {
	if len(paths) == 0 {
		return
	}

	c.logger.Info("Asynchronous object deletion requested",
		zap.String("bucket", bucket),
		zap.Int("count", len(paths)),
	)

	paths = append([]string(nil), paths...)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if err := c.DeleteObjects(ctx, bucket, paths); err != nil {
			c.logger.Error("Asynchronous object deletion failed",
				zap.String("bucket", bucket),
				zap.Int("count", len(paths)),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until asynchronous deletions finish or ctx is done.
func (c *SupabaseClient) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SupabaseClient) do(ctx context.Context, operation, method, path string, body any) ([]byte, error) {
	startTime := time.Now()
	outcome := "error"
	defer func() {
		c.metrics.requests.WithLabelValues(operation, outcome).Inc()
		c.metrics.latency.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}()

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("apikey", c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			outcome = "timeout"
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		if len(msg) > 1000 {
			msg = msg[:1000] + "..."
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	outcome = "success"
	return respBody, nil
}
