package archive

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/go-audio/audio"
)

// EncodeWAV returns a complete in-memory float WAV of buf, with the same
// header layout as archive files. Recognizer backends upload it.
func EncodeWAV(buf *audio.Float32Buffer) ([]byte, error) {
	if buf == nil {
		return nil, validateFormat(nil)
	}
	if err := validateFormat(buf.Format); err != nil {
		return nil, err
	}

	n := uint64(len(buf.Data)) * SampleWidth
	if n > maxDataBytes {
		return nil, ErrSizeLimit
	}

	var out bytes.Buffer
	out.Grow(HeaderSize + int(n))
	out.Write(newHeader(buf.Format, uint32(n)).Bytes()) //nolint:gosec // bounded above

	var scratch [SampleWidth]byte
	for _, s := range buf.Data {
		binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(s))
		out.Write(scratch[:])
	}
	return out.Bytes(), nil
}

// MonoBuffer wraps samples captured at sampleRate as a go-audio buffer
func MonoBuffer(samples []float32, sampleRate int) *audio.Float32Buffer {
	return &audio.Float32Buffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitsPerFloat,
	}
}
