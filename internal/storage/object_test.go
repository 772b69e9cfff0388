package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestIsFolder(t *testing.T) {
	assert.True(t, StorageObject{Path: "photos"}.IsFolder())
	assert.True(t, StorageObject{Path: "photos/", ID: strPtr("1")}.IsFolder())
	assert.False(t, StorageObject{Path: "a.jpg", ID: strPtr("1")}.IsFolder())
}

func TestCreatedTime(t *testing.T) {
	tests := []struct {
		name    string
		value   *string
		want    time.Time
		wantErr error
	}{
		{
			name:  "rfc3339 with millis",
			value: strPtr("2024-05-01T10:00:00.123Z"),
			want:  time.Date(2024, 5, 1, 10, 0, 0, 123000000, time.UTC),
		},
		{
			name:  "offset zone",
			value: strPtr("2024-05-01T12:00:00+02:00"),
			want:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "postgres style",
			value: strPtr("2024-05-01 10:00:00.5+00:00"),
			want:  time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC),
		},
		{
			name:  "no zone",
			value: strPtr("2024-05-01T10:00:00"),
			want:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:    "missing",
			value:   nil,
			wantErr: ErrNoTimestamp,
		},
		{
			name:    "blank",
			value:   strPtr("  "),
			wantErr: ErrNoTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StorageObject{Path: "a.jpg", CreatedAt: tt.value}.CreatedTime()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := StorageObject{CreatedAt: strPtr("yesterday")}.CreatedTime()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoTimestamp)
}

func TestObjectPathFromURL(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		bucket string
		want   string
		ok     bool
	}{
		{"flat", "https://x.supabase.co/storage/v1/object/public/items/a.jpg", "items", "a.jpg", true},
		{"nested", "https://x.supabase.co/storage/v1/object/public/profiles/u1/avatar.png", "profiles", "u1/avatar.png", true},
		{"escaped", "https://x.supabase.co/storage/v1/object/public/items/my%20photo.jpg", "items", "my photo.jpg", true},
		{"other bucket", "https://x.supabase.co/storage/v1/object/public/items/a.jpg", "locations", "", false},
		{"bare name", "a.jpg", "items", "", false},
		{"empty path", "https://x.supabase.co/storage/v1/object/public/items/", "items", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ObjectPathFromURL(tt.url, tt.bucket)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsValidURL(t *testing.T) {
	assert.True(t, isValidURL("https://abc.supabase.co"))
	assert.True(t, isValidURL("http://127.0.0.1:54321"))
	assert.False(t, isValidURL(""))
	assert.False(t, isValidURL("https://.supabase.co"))
	assert.False(t, isValidURL("abc.supabase.co"))
	assert.False(t, isValidURL("https://"))
}
