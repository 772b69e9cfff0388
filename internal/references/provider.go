package references

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.lumeweb.com/blob-janitor/internal/storage"
	"go.uber.org/zap"
)

// ErrUnknownBucket is returned for buckets that have no reference provider.
var ErrUnknownBucket = errors.New("no reference provider for bucket")

// Provider returns every URL or path the application currently references in one bucket.
type Provider interface {
	ReferencedURLs(ctx context.Context) ([]string, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context) ([]string, error)

func (f ProviderFunc) ReferencedURLs(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// Querier is the subset of *pgxpool.Pool used by QueryProvider.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// QueryProvider reads references with a single-column SQL query.
type QueryProvider struct {
	bucket string
	query  string
	db     Querier
	logger *zap.Logger
}

func NewQueryProvider(bucket, query string, db Querier, logger *zap.Logger) *QueryProvider {
	return &QueryProvider{
		bucket: bucket,
		query:  query,
		db:     db,
		logger: logger.With(zap.String("bucket", bucket)),
	}
}

// ReferencedURLs runs the query and returns the non-blank values. NULLs are skipped.
func (p *QueryProvider) ReferencedURLs(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx, p.query)
	if err != nil {
		return nil, fmt.Errorf("failed to query references for bucket %s: %w", p.bucket, err)
	}
	defer rows.Close()

	var urls []string
	foreign := 0
	for rows.Next() {
		var value *string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan reference row for bucket %s: %w", p.bucket, err)
		}
		if value == nil || strings.TrimSpace(*value) == "" {
			continue
		}
		if strings.Contains(*value, "/public/") {
			if _, ok := storage.ObjectPathFromURL(*value, p.bucket); !ok {
				foreign++
			}
		}
		urls = append(urls, *value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating references for bucket %s: %w", p.bucket, err)
	}

	if foreign > 0 {
		p.logger.Debug("References point at a different bucket", zap.Int("count", foreign))
	}

	return urls, nil
}

// Registry maps bucket names to their reference providers.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces the provider for bucket.
func (r *Registry) Register(bucket string, p Provider) {
	r.providers[bucket] = p
}

func (r *Registry) Provider(bucket string) (Provider, error) {
	p, ok := r.providers[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	return p, nil
}

// Buckets returns the registered bucket names in sorted order.
func (r *Registry) Buckets() []string {
	buckets := make([]string, 0, len(r.providers))
	for b := range r.providers {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	return buckets
}
