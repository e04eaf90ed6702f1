package relay

import (
	"testing"

	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkDecoder(t *testing.T) {
	tests := []struct {
		name    string
		chunks  [][]byte
		want    []string
		dropped int
	}{
		{
			name:   "ascii chunks pass through",
			chunks: [][]byte{[]byte("foo"), []byte("bar")},
			want:   []string{"foo", "bar"},
		},
		{
			name:   "multi-byte character split across chunks",
			chunks: [][]byte{[]byte("price: \xe2"), []byte("\x82\xac5")},
			want:   []string{"price: ", "€5"},
		},
		{
			name:   "chunk holding only a partial character",
			chunks: [][]byte{[]byte("\xe2\x82"), []byte("\xac")},
			want:   []string{"", "€"},
		},
		{
			name:    "invalid bytes in the middle are dropped",
			chunks:  [][]byte{[]byte("ok"), {'a', 0xff, 'b'}, []byte("next")},
			want:    []string{"ok", "", "next"},
			dropped: 1,
		},
		{
			name:    "carried bytes that never complete are dropped",
			chunks:  [][]byte{[]byte("\xe2\x82"), []byte("x")},
			want:    []string{"", ""},
			dropped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dec chunkDecoder
			got := make([]string, 0, len(tt.chunks))
			dropped := 0
			for _, chunk := range tt.chunks {
				text, err := dec.decode(chunk)
				if err != nil {
					require.ErrorIs(t, err, domain.ErrChunkDecode)
					dropped++
				}
				got = append(got, text)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.dropped, dropped)
			assert.NoError(t, dec.flush())
		})
	}
}

func TestChunkDecoder_FlushReportsIncompleteTail(t *testing.T) {
	var dec chunkDecoder

	text, err := dec.decode([]byte{'h', 'i', 0xe2, 0x82})
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	assert.ErrorIs(t, dec.flush(), domain.ErrChunkDecode)
	assert.NoError(t, dec.flush())
}
