package codec

import (
	"bytes"
	"errors"
	"fmt"
)

// Delimiter terminates every frame on the wire.
const Delimiter = '\n'

// DefaultMaxFrameBytes bounds a single frame when no limit is configured.
const DefaultMaxFrameBytes = 64 << 10

// ErrFrameTooLarge reports frames dropped for exceeding the size bound.
var ErrFrameTooLarge = errors.New("codec: frame exceeds size limit")

// OversizeError carries how many frames one Push dropped. It matches
// ErrFrameTooLarge under errors.Is.
type OversizeError struct {
	Dropped int
	Limit   int
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("%v: dropped %d frame(s) over %d bytes", ErrFrameTooLarge, e.Dropped, e.Limit)
}

func (e *OversizeError) Is(target error) bool { return target == ErrFrameTooLarge }

// Framer reassembles newline-delimited frames from arbitrary chunks.
//
// A frame longer than the limit is dropped and reported once, whether its
// delimiter arrives in the same chunk or many chunks later, so the emitted
// sequence does not depend on how the stream was split.
type Framer struct {
	buf        []byte
	max        int
	discarding bool
}

func NewFramer(maxFrameBytes int) *Framer {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &Framer{max: maxFrameBytes}
}

// Push appends chunk and returns every complete, non-blank frame now
// available, in stream order. Frames are copies and stay valid after the
// next Push.
func (f *Framer) Push(chunk []byte) ([][]byte, error) {
	var (
		frames  [][]byte
		dropped int
	)

	if f.discarding {
		idx := bytes.IndexByte(chunk, Delimiter)
		if idx < 0 {
			return nil, nil
		}
		chunk = chunk[idx+1:]
		f.discarding = false
	}
	f.buf = append(f.buf, chunk...)

	start := 0
	for {
		idx := bytes.IndexByte(f.buf[start:], Delimiter)
		if idx < 0 {
			break
		}
		line := f.buf[start : start+idx]
		start += idx + 1

		if len(line) > f.max {
			dropped++
			continue
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		frames = append(frames, append([]byte(nil), line...))
	}

	rest := len(f.buf) - start
	if rest > f.max {
		dropped++
		f.discarding = true
		f.buf = f.buf[:0]
	} else {
		copy(f.buf, f.buf[start:])
		f.buf = f.buf[:rest]
	}

	if dropped > 0 {
		return frames, &OversizeError{Dropped: dropped, Limit: f.max}
	}
	return frames, nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (f *Framer) Buffered() int { return len(f.buf) }

// Reset discards any partial frame and returns how many bytes were dropped.
func (f *Framer) Reset() int {
	n := len(f.buf)
	f.buf = f.buf[:0]
	f.discarding = false
	return n
}
