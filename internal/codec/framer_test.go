package codec

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, f *Framer, chunks [][]byte) ([]string, int) {
	t.Helper()
	var (
		out      []string
		errCount int
	)
	for _, c := range chunks {
		frames, err := f.Push(c)
		var oe *OversizeError
		if errors.As(err, &oe) {
			errCount += oe.Dropped
		}
		for _, fr := range frames {
			out = append(out, string(fr))
		}
	}
	return out, errCount
}

func splitEvery(stream []byte, n int) [][]byte {
	var chunks [][]byte
	for len(stream) > 0 {
		k := n
		if k > len(stream) {
			k = len(stream)
		}
		chunks = append(chunks, stream[:k])
		stream = stream[k:]
	}
	return chunks
}

func TestFramerExtractsFramesAndKeepsPartialTail(t *testing.T) {
	f := NewFramer(0)

	frames, err := f.Push([]byte("a\nb\npar"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, frames)
	require.Equal(t, 3, f.Buffered())

	frames, err = f.Push([]byte("tial\n"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("partial")}, frames)
	require.Zero(t, f.Buffered())
}

func TestFramerSkipsBlankFrames(t *testing.T) {
	f := NewFramer(0)

	frames, err := f.Push([]byte("\n  \n\t\nx\n\n"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("x")}, frames)
}

func TestFramerFramesDoNotAliasBuffer(t *testing.T) {
	f := NewFramer(0)

	frames, err := f.Push([]byte("first\nsec"))
	require.NoError(t, err)
	_, err = f.Push([]byte("ond\nthird\n"))
	require.NoError(t, err)
	require.Equal(t, "first", string(frames[0]))
}

func TestFramerChunkBoundaryIndependence(t *testing.T) {
	stream := []byte(`{"a":1}` + "\n\n" + `garbage` + "\n" + strings.Repeat("z", 40) + "\n" + `{"b":2}` + "\n  \n" + `tail-without-newline`)

	want, wantErrs := collect(t, NewFramer(32), [][]byte{stream})
	require.Equal(t, []string{`{"a":1}`, "garbage", `{"b":2}`}, want)
	require.Equal(t, 1, wantErrs)

	for size := 1; size <= len(stream); size++ {
		got, errs := collect(t, NewFramer(32), splitEvery(stream, size))
		require.Equal(t, want, got, "chunk size %d", size)
		require.Equal(t, wantErrs, errs, "chunk size %d", size)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		var chunks [][]byte
		rest := stream
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		got, _ := collect(t, NewFramer(32), chunks)
		require.Equal(t, want, got, "random split %d", i)
	}
}

func TestFramerBoundsBufferWithoutDelimiter(t *testing.T) {
	f := NewFramer(16)

	_, err := f.Push(bytes.Repeat([]byte("x"), 10))
	require.NoError(t, err)

	_, err = f.Push(bytes.Repeat([]byte("x"), 10))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrFrameTooLarge))
	require.Zero(t, f.Buffered())

	// The remainder of the oversized frame is skipped, not reported twice.
	frames, err := f.Push([]byte(strings.Repeat("x", 100) + "\nok\n"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("ok")}, frames)
}

func TestFramerFrameAtLimitIsKept(t *testing.T) {
	f := NewFramer(4)

	frames, err := f.Push([]byte("abcd\nabcde\n"))
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.Equal(t, [][]byte{[]byte("abcd")}, frames)

	var oe *OversizeError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, 1, oe.Dropped)
	require.Equal(t, 4, oe.Limit)
}

func TestFramerReset(t *testing.T) {
	f := NewFramer(0)

	_, err := f.Push([]byte(`{"partial":`))
	require.NoError(t, err)
	require.Equal(t, 11, f.Reset())

	frames, err := f.Push([]byte("{}\n"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("{}")}, frames)
}
