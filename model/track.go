package model

import (
	"strings"
	"time"
)

// LocalKeyPrefix marks track identifiers that refer to files on the local
// disk instead of catalog items.
const LocalKeyPrefix = "local:"

// Track is an opaque playable item, remote or local. Rows are never edited
// in place: a track is superseded by re-inserting under the same id.
type Track struct {
	ID              string   `gorm:"primaryKey" json:"id"`
	Title           string   `json:"title"`
	ArtistsText     string   `json:"artistsText,omitempty"`
	DurationText    string   `json:"durationText,omitempty"`
	ArtworkURL      string   `json:"artworkUrl,omitempty"`
	Explicit        bool     `json:"explicit,omitempty"`
	AlbumID         *string  `json:"albumId,omitempty"`
	ArtistIDs       string   `json:"artistIds,omitempty"` // comma separated
	LikedAt         *int64   `json:"likedAt,omitempty"`   // unix millis
	TotalPlayTimeMs int64    `json:"totalPlayTimeMs"`
	LoudnessBoostDb *float64 `json:"loudnessBoostDb,omitempty"`
	Blacklisted     bool     `gorm:"default:false" json:"blacklisted,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// IsLocal reports whether the track refers to a device-local file.
func (t *Track) IsLocal() bool {
	return IsLocalID(t.ID)
}

// IsLocalID reports whether a track identifier names a device-local file.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalKeyPrefix)
}

// LocalPath returns the path component of a local track identifier,
// relative to the configured music directory.
func LocalPath(id string) string {
	return strings.TrimPrefix(id, LocalKeyPrefix)
}
