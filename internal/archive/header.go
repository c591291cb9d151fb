package archive

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/go-audio/audio"

	"github.com/tphakala/livecaption/internal/errors"
)

const (
	// HeaderSize is the size of the RIFF/fmt/data header preceding samples
	HeaderSize = 44

	// SampleWidth is the size of one IEEE float sample in bytes
	SampleWidth = 4

	// FormatIEEEFloat is the WAVE_FORMAT_IEEE_FLOAT format tag
	FormatIEEEFloat = 3

	riffSizeOffset = 4
	dataSizeOffset = 40

	// riffOverhead is the RIFF size of a file with an empty data chunk
	riffOverhead = HeaderSize - 8

	fmtChunkSize = 16
	bitsPerFloat = SampleWidth * 8
)

// Header holds the fields of a 44-byte float WAV header
type Header struct {
	RIFFSize      uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// newHeader returns the header for dataBytes bytes of float samples
func newHeader(format *audio.Format, dataBytes uint32) Header {
	channels := uint16(format.NumChannels)    //nolint:gosec // validated to be 1
	sampleRate := uint32(format.SampleRate)   //nolint:gosec // validated positive
	blockAlign := channels * SampleWidth
	return Header{
		RIFFSize:      riffOverhead + dataBytes,
		AudioFormat:   FormatIEEEFloat,
		Channels:      channels,
		SampleRate:    sampleRate,
		ByteRate:      sampleRate * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerFloat,
		DataSize:      dataBytes,
	}
}

// Bytes encodes the header in little-endian RIFF layout
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:4], "RIFF")
	binary.LittleEndian.PutUint32(b[4:8], h.RIFFSize)
	copy(b[8:12], "WAVE")
	copy(b[12:16], "fmt ")
	binary.LittleEndian.PutUint32(b[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(b[20:22], h.AudioFormat)
	binary.LittleEndian.PutUint16(b[22:24], h.Channels)
	binary.LittleEndian.PutUint32(b[24:28], h.SampleRate)
	binary.LittleEndian.PutUint32(b[28:32], h.ByteRate)
	binary.LittleEndian.PutUint16(b[32:34], h.BlockAlign)
	binary.LittleEndian.PutUint16(b[34:36], h.BitsPerSample)
	copy(b[36:40], "data")
	binary.LittleEndian.PutUint32(b[40:44], h.DataSize)
	return b
}

// Samples returns the number of frames in the data chunk
func (h Header) Samples() int {
	if h.BlockAlign == 0 {
		return 0
	}
	return int(h.DataSize / uint32(h.BlockAlign))
}

// Duration returns the playback length of the data chunk
func (h Header) Duration() time.Duration {
	if h.ByteRate == 0 {
		return 0
	}
	return time.Duration(float64(h.DataSize) / float64(h.ByteRate) * float64(time.Second))
}

// Format returns the go-audio format described by the header
func (h Header) Format() *audio.Format {
	return &audio.Format{NumChannels: int(h.Channels), SampleRate: int(h.SampleRate)}
}

// ReadHeader reads and validates the header at the start of r.
func ReadHeader(r io.ReaderAt) (Header, error) {
	b := make([]byte, HeaderSize)
	if _, err := r.ReadAt(b, 0); err != nil {
		return Header{}, errors.New(err).
			Component(ComponentArchive).
			Category(errors.CategoryFileIO).
			Context("operation", "read_header").
			Build()
	}

	for _, tag := range []struct {
		off  int
		want string
	}{{0, "RIFF"}, {8, "WAVE"}, {12, "fmt "}, {36, "data"}} {
		if got := string(b[tag.off : tag.off+4]); got != tag.want {
			return Header{}, errors.New(ErrInvalidHeader).
				Component(ComponentArchive).
				Category(errors.CategoryValidation).
				Context("offset", tag.off).
				Context("expected", tag.want).
				Context("found", got).
				Build()
		}
	}

	if size := binary.LittleEndian.Uint32(b[16:20]); size != fmtChunkSize {
		return Header{}, errors.New(ErrInvalidHeader).
			Component(ComponentArchive).
			Category(errors.CategoryValidation).
			Context("fmt_chunk_size", size).
			Build()
	}

	return Header{
		RIFFSize:      binary.LittleEndian.Uint32(b[4:8]),
		AudioFormat:   binary.LittleEndian.Uint16(b[20:22]),
		Channels:      binary.LittleEndian.Uint16(b[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(b[24:28]),
		ByteRate:      binary.LittleEndian.Uint32(b[28:32]),
		BlockAlign:    binary.LittleEndian.Uint16(b[32:34]),
		BitsPerSample: binary.LittleEndian.Uint16(b[34:36]),
		DataSize:      binary.LittleEndian.Uint32(b[40:44]),
	}, nil
}
