package relay

import (
	"fmt"
	"unicode/utf8"

	"github.com/pscheid92/streamrelay/internal/domain"
)

// chunkDecoder turns raw body reads into UTF-8 text. Upstream reads may split
// a multi-byte character across two chunks; the incomplete tail is held back
// and prefixed to the next read.
type chunkDecoder struct {
	carry []byte
}

// decode returns the text ready to publish. An error wrapping
// domain.ErrChunkDecode means the chunk was discarded.
func (d *chunkDecoder) decode(chunk []byte) (string, error) {
	data := chunk
	if len(d.carry) > 0 {
		data = append(d.carry, chunk...)
		d.carry = nil
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	cut := incompleteTail(data)
	if cut < 0 || !utf8.Valid(data[:cut]) {
		return "", fmt.Errorf("%w: %d bytes", domain.ErrChunkDecode, len(data))
	}

	d.carry = append([]byte(nil), data[cut:]...)
	return string(data[:cut]), nil
}

// flush reports bytes still held back once the stream has ended.
func (d *chunkDecoder) flush() error {
	if len(d.carry) == 0 {
		return nil
	}
	n := len(d.carry)
	d.carry = nil
	return fmt.Errorf("%w: %d trailing bytes", domain.ErrChunkDecode, n)
}

// incompleteTail returns the offset of a truncated multi-byte sequence at the
// end of data, or -1 if data does not end in one.
func incompleteTail(data []byte) int {
	for i := len(data) - 1; i >= 0 && i > len(data)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if utf8.FullRune(data[i:]) {
			return -1
		}
		return i
	}
	return -1
}
