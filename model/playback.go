package model

// Format holds per-track stream metadata learned at resolution time.
// Written with replace-on-conflict semantics: one row per track.
type Format struct {
	TrackID       string   `gorm:"primaryKey" json:"trackId"`
	Itag          int      `json:"itag"`
	MimeType      string   `json:"mimeType,omitempty"`
	Bitrate       int64    `json:"bitrate,omitempty"`
	LoudnessDb    *float64 `json:"loudnessDb,omitempty"`
	ContentLength *int64   `json:"contentLength,omitempty"`
	LastModified  *int64   `json:"lastModified,omitempty"`
}

// QueuedTrack is one slot of the persisted playback queue. Position is the
// resume position in millis and is non-nil for at most one row per saved
// snapshot: the track the engine was playing when the queue was persisted.
type QueuedTrack struct {
	ItemID   uint   `gorm:"primaryKey;autoIncrement" json:"itemId"`
	Track    Track  `gorm:"embedded;embeddedPrefix:track_" json:"track"`
	Position *int64 `json:"position,omitempty"`
}

// PlaybackEvent records one meaningful listen of a track. Append-only;
// only ever deleted in bulk by user action.
type PlaybackEvent struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TrackID   string `gorm:"index" json:"trackId"`
	Timestamp int64  `json:"timestamp"` // unix millis
	PlayTime  int64  `json:"playTime"`  // millis
}
