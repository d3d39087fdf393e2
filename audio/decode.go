package audio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// Decode picks a decoder by MIME type, falling back to the file extension
// when the hint is empty or unrecognized.
func Decode(rc io.ReadCloser, mimeType, name string) (beep.StreamSeekCloser, beep.Format, error) {
	switch normalizeCodec(mimeType, name) {
	case "mp3":
		return mp3.Decode(rc)
	case "vorbis":
		return vorbis.Decode(rc)
	case "flac":
		return flac.Decode(rc)
	case "wav":
		return wav.Decode(rc)
	default:
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("audio: no decoder for %q (%s)", mimeType, name)
	}
}

func normalizeCodec(mimeType, name string) string {
	mt := strings.ToLower(mimeType)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/webm", "audio/ogg", "application/ogg", "audio/vorbis", "audio/opus":
		return "vorbis"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "mp3"
	case ".ogg", ".oga", ".webm", ".opus":
		return "vorbis"
	case ".flac":
		return "flac"
	case ".wav":
		return "wav"
	}
	return ""
}
