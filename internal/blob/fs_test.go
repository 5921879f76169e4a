package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{name: "plain", filename: "report.pdf", want: "msg/att/report.pdf"},
		{name: "empty filename", filename: "", want: "msg/att/attachment"},
		{name: "path traversal stripped", filename: "../../etc/passwd", want: "msg/att/_____etc_passwd"},
		{name: "backslash stripped", filename: `a\b.txt`, want: "msg/att/a_b.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key("msg", "att", tt.filename))
		})
	}
}

func TestFSStoreRoundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := Key("m1", "a1", "file.bin")
	payload := []byte{0x01, 0x02, 0x03}

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, key, payload))

	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
