package archive

import (
	"github.com/go-audio/audio"

	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/logger"
)

// ComponentArchive identifies archive errors
const ComponentArchive = "archive"

var (
	// ErrFinalized is returned by Append and Sync after Finalize
	ErrFinalized = errors.NewStd("archive is finalized")

	// ErrSizeLimit is returned when an append would overflow the 32-bit RIFF size
	ErrSizeLimit = errors.NewStd("archive size limit reached")

	// ErrInvalidHeader is returned by ReadHeader for anything but a 44-byte float WAV header
	ErrInvalidHeader = errors.NewStd("invalid wav header")
)

// GetLogger returns the archive package logger
func GetLogger() logger.Logger {
	return logger.Global().Module(ComponentArchive)
}

func validateFormat(format *audio.Format) error {
	if format == nil || format.SampleRate <= 0 || format.NumChannels != 1 {
		b := errors.New(nil).
			Component(ComponentArchive).
			Category(errors.CategoryValidation).
			Context("error", "archive format must be mono with a positive sample rate")
		if format != nil {
			b = b.Context("sample_rate", format.SampleRate).Context("channels", format.NumChannels)
		}
		return b.Build()
	}
	return nil
}
