package streamcache

import (
	"fmt"
	"io"
	"os"
)

// spanReader serves one contiguous byte range out of possibly overlapping
// span files, opening them lazily in order.
type spanReader struct {
	parts   []part
	current io.ReadCloser
}

type part struct {
	file   string
	offset int64
	length int64
}

func newSpanReader(spans []span, pos, length int64) (io.ReadCloser, error) {
	var parts []part
	need := pos
	end := pos + length
	for _, s := range spans {
		if need >= end {
			break
		}
		if s.start+s.length <= need || s.start > need {
			if s.start > need {
				return nil, fmt.Errorf("cache range [%d,%d) has a gap at %d", pos, end, need)
			}
			continue
		}
		take := s.start + s.length - need
		if remaining := end - need; take > remaining {
			take = remaining
		}
		parts = append(parts, part{file: s.file, offset: need - s.start, length: take})
		need += take
	}
	if need < end {
		return nil, fmt.Errorf("cache range [%d,%d) has a gap at %d", pos, end, need)
	}
	return &spanReader{parts: parts}, nil
}

func (r *spanReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if len(r.parts) == 0 {
				return 0, io.EOF
			}
			next := r.parts[0]
			r.parts = r.parts[1:]

			f, err := os.Open(next.file)
			if err != nil {
				return 0, err
			}
			if _, err := f.Seek(next.offset, io.SeekStart); err != nil {
				f.Close()
				return 0, err
			}
			r.current = &limitedFile{f: f, remaining: next.length}
		}

		n, err := r.current.Read(p)
		if err == io.EOF {
			r.current.Close()
			r.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *spanReader) Close() error {
	if r.current != nil {
		return r.current.Close()
	}
	return nil
}

type limitedFile struct {
	f         *os.File
	remaining int64
}

func (l *limitedFile) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.f.Read(p)
	l.remaining -= int64(n)
	if err == nil && l.remaining == 0 {
		err = io.EOF
	}
	return n, err
}

func (l *limitedFile) Close() error {
	return l.f.Close()
}
