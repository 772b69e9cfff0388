package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// EmptyFolderPlaceholder is the marker object the storage backend writes into
// otherwise empty folders. It is never treated as a file or a folder.
const EmptyFolderPlaceholder = ".emptyFolderPlaceholder"

var (
	// ErrStoreUnavailable is returned when the base URL or secret key is missing or malformed.
	ErrStoreUnavailable = errors.New("object store is not configured")
	// ErrNoTimestamp is returned by CreatedTime when the listing carried no created_at.
	ErrNoTimestamp = errors.New("object has no creation timestamp")
)

// StorageObject is one entry of a bucket listing. Pointer fields are nullable on the wire.
type StorageObject struct {
	Path           string
	ID             *string
	CreatedAt      *string
	UpdatedAt      *string
	LastAccessedAt *string
	Metadata       map[string]any
}

// listEntry mirrors the JSON returned by the list endpoint.
type listEntry struct {
	Name           string         `json:"name"`
	ID             *string        `json:"id"`
	CreatedAt      *string        `json:"created_at"`
	UpdatedAt      *string        `json:"updated_at"`
	LastAccessedAt *string        `json:"last_accessed_at"`
	Metadata       map[string]any `json:"metadata"`
}

func (e listEntry) object() StorageObject {
	return StorageObject{
		Path:           e.Name,
		ID:             e.ID,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
		LastAccessedAt: e.LastAccessedAt,
		Metadata:       e.Metadata,
	}
}

// IsFolder reports whether the entry is a folder rather than a stored file.
func (o StorageObject) IsFolder() bool {
	return o.ID == nil || strings.HasSuffix(o.Path, "/")
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
}

// CreatedTime parses the created_at timestamp. Values without a zone are read as UTC.
func (o StorageObject) CreatedTime() (time.Time, error) {
	if o.CreatedAt == nil || strings.TrimSpace(*o.CreatedAt) == "" {
		return time.Time{}, ErrNoTimestamp
	}

	value := strings.TrimSpace(*o.CreatedAt)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("invalid created_at %q: %w", value, lastErr)
}

// ObjectPathFromURL extracts the object path from a public object URL of the form
// https://host/storage/v1/object/public/{bucket}/{path}.
func ObjectPathFromURL(publicURL, bucket string) (string, bool) {
	token := "/public/" + bucket + "/"
	idx := strings.Index(publicURL, token)
	if idx == -1 {
		return "", false
	}

	path, err := url.PathUnescape(publicURL[idx+len(token):])
	if err != nil || path == "" {
		return "", false
	}
	return path, true
}

// isValidURL rejects blank URLs, non-http schemes and hosts left empty by a
// failed environment substitution such as "https://.supabase.co".
func isValidURL(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	return host != "" && !strings.HasPrefix(host, ".")
}
