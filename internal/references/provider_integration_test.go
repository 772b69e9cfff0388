//go:build integration

package references

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.lumeweb.com/blob-janitor/internal/config"
	"go.lumeweb.com/blob-janitor/internal/database"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE item_photos (id serial PRIMARY KEY, photo_url text);
CREATE TABLE locations (id serial PRIMARY KEY, photo_url text);
CREATE TABLE profiles (id serial PRIMARY KEY, avatar_url text);
INSERT INTO item_photos (photo_url) VALUES
  ('https://x.supabase.co/storage/v1/object/public/items/a.jpg'),
  (NULL),
  ('b.jpg');
INSERT INTO locations (photo_url) VALUES (NULL);
INSERT INTO profiles (avatar_url) VALUES ('https://x.supabase.co/storage/v1/object/public/profiles/u1/me.png');
`

func TestDefaultRegistryAgainstPostgres(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("janitor"),
		postgres.WithUsername("janitor"),
		postgres.WithPassword("janitor"),
		testcontainers.WithWaitStrategyAndDeadline(2*time.Minute,
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := &config.Config{Database: config.DatabaseConfig{URL: dsn, MaxConns: 2, ConnectTimeout: 10 * time.Second}}
	db, err := database.NewClient(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Ping(ctx))
	_, err = db.Pool().Exec(ctx, schema)
	require.NoError(t, err)

	registry := NewDefaultRegistry(db.Pool(), zap.NewNop())

	want := map[string][]string{
		"items":     {"https://x.supabase.co/storage/v1/object/public/items/a.jpg", "b.jpg"},
		"locations": nil,
		"profiles":  {"https://x.supabase.co/storage/v1/object/public/profiles/u1/me.png"},
	}
	for bucket, expected := range want {
		p, err := registry.Provider(bucket)
		require.NoError(t, err)
		urls, err := p.ReferencedURLs(ctx)
		require.NoError(t, err, bucket)
		assert.ElementsMatch(t, expected, urls, bucket)
	}
}
