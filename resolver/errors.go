package resolver

import "fmt"

// Kind classifies a resolution failure. The engine's error recovery
// depends on these staying distinct; never collapse them into a plain
// I/O error.
type Kind int

const (
	// KindIDMismatch: the API answered for a different track than
	// requested. Fatal for this attempt; nothing may be written.
	KindIDMismatch Kind = iota
	// KindUnplayable: the catalog marks the item as not streamable here.
	KindUnplayable
	// KindLoginRequired: the catalog wants authenticated access.
	KindLoginRequired
	// KindNoFormat: resolution succeeded but no usable audio stream exists.
	KindNoFormat
	// KindRemote: any other transport or remote failure, cause preserved.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindIDMismatch:
		return "id mismatch"
	case KindUnplayable:
		return "unplayable"
	case KindLoginRequired:
		return "login required"
	case KindNoFormat:
		return "no playable format"
	case KindRemote:
		return "remote error"
	default:
		return "unknown"
	}
}

// ResolutionError is a classified failure to resolve a track.
type ResolutionError struct {
	Kind    Kind
	TrackID string
	Status  string // raw playability status, when one was returned
	cause   error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolution of %s failed: %s", e.TrackID, e.Kind)
	if e.Status != "" {
		msg += fmt.Sprintf(" (status %s)", e.Status)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return e.cause
}

// AsResolutionError extracts a ResolutionError from an error chain.
func AsResolutionError(err error) (*ResolutionError, bool) {
	for err != nil {
		if re, ok := err.(*ResolutionError); ok {
			return re, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// IsKind reports whether err is a ResolutionError of the given kind.
func IsKind(err error, kind Kind) bool {
	re, ok := AsResolutionError(err)
	return ok && re.Kind == kind
}
