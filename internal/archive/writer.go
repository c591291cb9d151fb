// Package archive records the captured stream to a 32-bit IEEE float WAV
// file. The header is written with zero sizes up front and patched once the
// amount of data is known.
package archive

import (
	"bufio"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"

	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/logger"
)

// maxDataBytes keeps RIFFSize = 36 + data within uint32
const maxDataBytes = math.MaxUint32 - riffOverhead

const writeBufferSize = 64 * 1024

// Option configures a Writer
type Option func(*Writer)

// WithSyncInterval makes Append patch the header whenever interval has
// passed since the last patch. Zero patches only on Sync and Finalize.
func WithSyncInterval(interval time.Duration) Option {
	return func(w *Writer) {
		w.syncInterval = interval
	}
}

// WithClock replaces time.Now for the sync interval
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// Writer appends samples to a float WAV file.
//
// States: header written on Create, any number of Appends, then Finalize.
// Finalize is terminal and runs once.
type Writer struct {
	mu        sync.Mutex
	path      string
	format    audio.Format
	file      *os.File
	buf       *bufio.Writer
	dataBytes uint32
	finalized bool

	syncInterval time.Duration
	lastSync     time.Time
	now          func() time.Time

	finalizeOnce sync.Once
	finalizeErr  error
}

// Create truncates path and writes a header with zero size fields.
func Create(path string, format *audio.Format, opts ...Option) (*Writer, error) {
	if err := validateFormat(format); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.New(err).
				Component(ComponentArchive).
				Category(errors.CategoryFileIO).
				Context("operation", "create_archive_dir").
				Context("path", dir).
				Build()
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644) //nolint:gosec // path comes from config
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentArchive).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Context("operation", "open_archive").
			Build()
	}

	w := &Writer{
		path:   path,
		format: *format,
		file:   file,
		buf:    bufio.NewWriterSize(file, writeBufferSize),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.lastSync = w.now()

	// header bypasses the buffer so the file is never shorter than 44 bytes
	if _, err := file.Write(newHeader(format, 0).Bytes()); err != nil {
		_ = file.Close()
		return nil, w.ioError(err, "write_header")
	}

	GetLogger().Debug("archive created",
		logger.String("path", path),
		logger.Int("sample_rate", format.SampleRate))

	return w, nil
}

// Path returns the archive file path
func (w *Writer) Path() string {
	return w.path
}

// DataBytes returns the number of sample bytes appended so far
func (w *Writer) DataBytes() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dataBytes
}

// Append writes samples in capture order. It returns ErrFinalized after
// Finalize and ErrSizeLimit, without writing anything, if the file would
// outgrow the 32-bit RIFF size.
func (w *Writer) Append(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return ErrFinalized
	}
	if len(samples) == 0 {
		return nil
	}

	n := uint64(len(samples)) * SampleWidth
	if uint64(w.dataBytes)+n > maxDataBytes {
		return errors.New(ErrSizeLimit).
			Component(ComponentArchive).
			Category(errors.CategoryLimit).
			Context("data_bytes", w.dataBytes).
			Context("append_bytes", n).
			Build()
	}

	var scratch [SampleWidth]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(s))
		if _, err := w.buf.Write(scratch[:]); err != nil {
			return w.ioError(err, "append_samples")
		}
	}
	w.dataBytes += uint32(n) //nolint:gosec // bounded by maxDataBytes

	if w.syncInterval > 0 && w.now().Sub(w.lastSync) >= w.syncInterval {
		return w.syncLocked()
	}
	return nil
}

// AppendBuffer appends a go-audio float buffer. Its format must match.
func (w *Writer) AppendBuffer(buf *audio.Float32Buffer) error {
	if buf == nil {
		return nil
	}
	if buf.Format != nil && (buf.Format.SampleRate != w.format.SampleRate || buf.Format.NumChannels != w.format.NumChannels) {
		return errors.New(nil).
			Component(ComponentArchive).
			Category(errors.CategoryValidation).
			Context("error", "buffer format does not match archive format").
			Context("sample_rate", buf.Format.SampleRate).
			Context("channels", buf.Format.NumChannels).
			Build()
	}
	return w.Append(buf.Data)
}

// Sync flushes buffered samples and patches both size fields so the file
// is playable as of now. The file stays open.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return ErrFinalized
	}
	return w.syncLocked()
}

func (w *Writer) syncLocked() error {
	if err := w.buf.Flush(); err != nil {
		return w.ioError(err, "flush")
	}
	if err := w.patchSizesLocked(); err != nil {
		return err
	}
	w.lastSync = w.now()
	return nil
}

func (w *Writer) patchSizesLocked() error {
	var field [4]byte

	binary.LittleEndian.PutUint32(field[:], riffOverhead+w.dataBytes)
	if _, err := w.file.WriteAt(field[:], riffSizeOffset); err != nil {
		return w.ioError(err, "patch_riff_size")
	}

	binary.LittleEndian.PutUint32(field[:], w.dataBytes)
	if _, err := w.file.WriteAt(field[:], dataSizeOffset); err != nil {
		return w.ioError(err, "patch_data_size")
	}
	return nil
}

// Finalize flushes, writes the final sizes, syncs and closes the file.
// Only the first call does any work; later calls return its result.
func (w *Writer) Finalize() error {
	w.finalizeOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()

		w.finalized = true
		w.finalizeErr = w.finalizeLocked()

		if w.finalizeErr != nil {
			GetLogger().Error("archive finalize failed",
				logger.String("path", w.path),
				logger.Error(w.finalizeErr))
			return
		}
		GetLogger().Info("archive finalized",
			logger.String("path", w.path),
			logger.Int64("data_bytes", int64(w.dataBytes)),
			logger.Duration("duration", newHeader(&w.format, w.dataBytes).Duration()))
	})
	return w.finalizeErr
}

func (w *Writer) finalizeLocked() error {
	var errs []error

	if err := w.buf.Flush(); err != nil {
		errs = append(errs, w.ioError(err, "flush"))
	}
	if err := w.patchSizesLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := w.file.Sync(); err != nil {
		errs = append(errs, w.ioError(err, "fsync"))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, w.ioError(err, "close"))
	}
	return errors.Join(errs...)
}

func (w *Writer) ioError(err error, operation string) error {
	return errors.New(err).
		Component(ComponentArchive).
		Category(errors.CategoryFileIO).
		FileContext(w.path, int64(HeaderSize)+int64(w.dataBytes)).
		Context("operation", operation).
		Build()
}
