package ai

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n" +
	": keep-alive comment\n" +
	"\n" +
	"data: not-json\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\r\n" +
	"data: {\"choices\":[]}\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" wörld\"}}]}\n" +
	"data: [DONE]\n"

func collect(t *testing.T, r io.Reader) []string {
	t.Helper()
	var got []string
	err := DecodeStream(context.Background(), r, func(fragment string) {
		got = append(got, fragment)
	})
	require.NoError(t, err)
	return got
}

func TestDecodeStream_SkipsNoise(t *testing.T) {
	got := collect(t, strings.NewReader(sampleStream))
	assert.Equal(t, []string{"Hel", "lo", " wörld"}, got)
}

// splitReader hands out the input in pieces cut at the given offsets.
type splitReader struct {
	pieces []string
}

func (s *splitReader) Read(p []byte) (int, error) {
	if len(s.pieces) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.pieces[0])
	s.pieces[0] = s.pieces[0][n:]
	if s.pieces[0] == "" {
		s.pieces = s.pieces[1:]
	}
	return n, nil
}

func TestDecodeStream_SplitInvariant(t *testing.T) {
	want := collect(t, strings.NewReader(sampleStream))

	assert.Equal(t, want, collect(t, iotest.OneByteReader(strings.NewReader(sampleStream))))
	assert.Equal(t, want, collect(t, iotest.HalfReader(strings.NewReader(sampleStream))))

	for cut := 1; cut < len(sampleStream); cut++ {
		r := &splitReader{pieces: []string{sampleStream[:cut], sampleStream[cut:]}}
		assert.Equal(t, want, collect(t, r), "split at %d", cut)
	}
}

func TestDecodeStream_FinalLineWithoutNewline(t *testing.T) {
	got := collect(t, strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}"))
	assert.Equal(t, []string{"tail"}, got)
}

func TestDecodeStream_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n"),
		iotest.ErrReader(boom),
	)
	var got []string
	err := DecodeStream(context.Background(), r, func(f string) { got = append(got, f) })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, got)
}

func TestDecodeStream_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := DecodeStream(ctx, strings.NewReader(sampleStream), func(string) {
		t.Fatal("no fragment expected after cancellation")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
