package references

import "go.uber.org/zap"

// Queries used by the built-in buckets.
const (
	ItemPhotosQuery     = "SELECT photo_url FROM item_photos WHERE photo_url IS NOT NULL"
	LocationPhotosQuery = "SELECT photo_url FROM locations WHERE photo_url IS NOT NULL"
	ProfileAvatarsQuery = "SELECT avatar_url FROM profiles WHERE avatar_url IS NOT NULL"
)

// NewDefaultRegistry wires the items, locations and profiles buckets to db.
func NewDefaultRegistry(db Querier, logger *zap.Logger) *Registry {
	r := NewRegistry()
	r.Register("items", NewQueryProvider("items", ItemPhotosQuery, db, logger))
	r.Register("locations", NewQueryProvider("locations", LocationPhotosQuery, db, logger))
	r.Register("profiles", NewQueryProvider("profiles", ProfileAvatarsQuery, db, logger))
	return r
}
