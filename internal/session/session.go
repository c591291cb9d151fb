// Package session runs one capture session: it paces recognition over the
// stream buffer, shows the running transcript, and commits utterances to the
// transcript log, archive, store and broker when the segmentation policy
// finalizes them.
package session

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/livecaption/internal/archive"
	"github.com/tphakala/livecaption/internal/capture"
	"github.com/tphakala/livecaption/internal/datastore"
	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/logger"
	"github.com/tphakala/livecaption/internal/mqtt"
	"github.com/tphakala/livecaption/internal/recognizer"
	"github.com/tphakala/livecaption/internal/segment"
	"github.com/tphakala/livecaption/internal/telemetry"
	"github.com/tphakala/livecaption/internal/transcript"
	"github.com/tphakala/livecaption/internal/translation"
)

// Source is a running audio input feeding the stream buffer
type Source interface {
	Start() error
	Stop() error
	Errors() <-chan error
}

// Runner is a background service tied to the session lifetime
type Runner interface {
	Run(ctx context.Context) error
}

// Config holds the session parameters
type Config struct {
	ID               string // generated when empty
	SampleRate       int
	Interval         float64 // seconds of new audio per recognition unit
	MinDuration      time.Duration
	Language         string
	Temperature      float32
	TranslateTarget  string // empty disables translation
	StripAnnotations bool
	ClearScreen      bool
}

// Deps are the collaborators of a session. Archive, Store, Publisher,
// Metrics and Server are optional.
type Deps struct {
	Buffer     *capture.StreamBuffer
	Source     Source
	Recognizer recognizer.Recognizer
	Translator translation.Translator
	Transcript *transcript.Log
	Archive    *archive.Writer
	Store      datastore.Interface
	Publisher  mqtt.Client
	Metrics    *telemetry.Metrics
	Server     Runner
	Display    io.Writer
	Clock      func() time.Time
}

// Session is the process-wide capture session. Close runs the shutdown
// path exactly once, whether Run ended normally or by cancellation.
type Session struct {
	config Config
	Deps

	policy  *segment.Policy
	display *Display
	system  telemetry.SystemInfo
	log     logger.Logger

	mu            sync.Mutex
	startedAt     time.Time
	segmentStart  time.Time
	sequence      int
	lastText      string
	archiveFailed bool

	closeOnce sync.Once
	closeErr  error
}

// GetLogger returns the session package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("session")
}

// New validates deps and returns an idle session
func New(config Config, deps Deps) (*Session, error) {
	switch {
	case deps.Buffer == nil, deps.Source == nil, deps.Recognizer == nil, deps.Transcript == nil:
		return nil, errors.Newf("session requires a buffer, source, recognizer and transcript").
			Component("session").
			Category(errors.CategoryConfiguration).
			Build()
	case config.SampleRate <= 0 || config.Interval <= 0:
		return nil, errors.Newf("invalid pacing: sample rate %d, interval %v", config.SampleRate, config.Interval).
			Component("session").
			Category(errors.CategoryValidation).
			Build()
	}

	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	if deps.Translator == nil {
		deps.Translator = translation.Nop{}
	}
	if deps.Display == nil {
		deps.Display = os.Stdout
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	now := deps.Clock()
	return &Session{
		config:       config,
		Deps:         deps,
		policy:       segment.New(config.MinDuration, deps.Clock),
		display:      NewDisplay(deps.Display, config.ClearScreen),
		system:       telemetry.CollectSystemInfo(),
		log:          GetLogger().With(logger.String("session_id", config.ID)),
		startedAt:    now,
		segmentStart: now,
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.config.ID
}

// Run starts capture and processes units until ctx is cancelled, the source
// fails or capture stops. Cancellation is a normal exit. Call Close after
// Run returns.
func (s *Session) Run(ctx context.Context) error {
	s.log.Info("starting capture session",
		logger.String("host", s.system.Hostname),
		logger.String("platform", s.system.Platform),
		logger.String("platform_version", s.system.PlatformVer),
		logger.Int("sample_rate", s.config.SampleRate),
		logger.Float64("interval", s.config.Interval),
		logger.Duration("min_duration", s.config.MinDuration),
		logger.String("translate_target", s.config.TranslateTarget))

	s.Buffer.Start()
	if err := s.Source.Start(); err != nil {
		s.Buffer.Stop()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return s.loop(gctx)
	})
	g.Go(func() error { return s.watchSource(gctx) })
	if s.Server != nil {
		g.Go(func() error { return s.Server.Run(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		s.log.Info("capture session interrupted")
		return nil
	}
	return err
}

// watchSource ends the session on the first device error
func (s *Session) watchSource(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-s.Source.Errors():
		s.log.Error("capture source failed", logger.Error(err))
		s.Buffer.Stop()
		return err
	}
}

// loop is the single consumer. Each unit covers everything captured since
// the last finalize, and the next one is due once another interval of
// audio has arrived.
func (s *Session) loop(ctx context.Context) error {
	step := capture.TargetSamples(s.config.SampleRate, s.config.Interval)
	target := step

	for {
		unit, err := s.Buffer.Wait(ctx, target)
		if err != nil {
			if errors.Is(err, capture.ErrNotCapturing) {
				s.log.Info("capture stopped, ending session")
				return nil
			}
			return err
		}
		target = unit.Pending + step
		s.Metrics.SetBufferPending(unit.Pending)

		text, err := s.recognize(ctx, unit)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		s.mu.Lock()
		s.lastText = text
		s.mu.Unlock()

		if err := s.display.Show(text); err != nil {
			s.log.Warn("failed to update display", logger.Error(err))
		}

		if !s.policy.Observe(text) {
			continue
		}
		if err := s.finalize(ctx, text); err != nil {
			return err
		}
		target = step
	}
}

func (s *Session) recognize(ctx context.Context, unit capture.Unit) (string, error) {
	start := time.Now()
	segments, err := s.Recognizer.Recognize(ctx, unit.Samples, recognizer.Options{
		Language:    s.config.Language,
		Temperature: s.config.Temperature,
	})
	s.Metrics.ObserveRecognition(time.Since(start), len(unit.Samples), err)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("recognition failed, skipping unit",
				logger.Int("samples", len(unit.Samples)),
				logger.Error(err))
		}
		return "", err
	}

	text := recognizer.Join(segments)
	if s.config.StripAnnotations {
		text = recognizer.StripAnnotations(text)
	}
	s.log.Debug("unit recognized",
		logger.Int("samples", len(unit.Samples)),
		logger.Duration("elapsed", time.Since(start)),
		logger.String("text", text))
	return text, nil
}

// finalize commits text as one utterance. The text line reaches the
// transcript before translation starts.
func (s *Session) finalize(ctx context.Context, text string) error {
	if err := s.Transcript.WriteText(text); err != nil {
		return err
	}

	translated := s.translate(ctx, text)
	if err := s.Transcript.WriteTranslation(translated); err != nil {
		return err
	}

	samples := s.Buffer.Drain()
	s.archiveSamples(samples)

	now := s.Clock()
	s.mu.Lock()
	s.sequence++
	u := &datastore.Utterance{
		UUID:        uuid.NewString(),
		SessionID:   s.config.ID,
		Sequence:    s.sequence,
		Text:        text,
		Translation: translated,
		Language:    s.config.TranslateTarget,
		StartedAt:   s.segmentStart,
		FinalizedAt: now,
		Samples:     len(samples),
	}
	s.segmentStart = now
	s.mu.Unlock()

	s.policy.Finalized()
	s.Metrics.IncUtterances()
	s.Metrics.SetBufferPending(0)

	s.log.Info("utterance finalized",
		logger.Int("sequence", u.Sequence),
		logger.Int("samples", u.Samples),
		logger.Bool("translated", translated != ""))

	s.persist(ctx, u)
	return nil
}

func (s *Session) translate(ctx context.Context, text string) string {
	if s.config.TranslateTarget == "" {
		return ""
	}

	start := time.Now()
	translated, err := s.Translator.Translate(ctx, text, s.config.TranslateTarget)
	s.Metrics.ObserveTranslation(time.Since(start), err)
	if err != nil {
		s.log.Warn("translation failed, keeping utterance untranslated",
			logger.String("target", s.config.TranslateTarget),
			logger.Error(err))
		return ""
	}
	return translated
}

// archiveSamples appends drained samples. After the first failure the
// archive is left alone until Close finalizes what was written.
func (s *Session) archiveSamples(samples []float32) {
	if s.Archive == nil {
		return
	}

	s.mu.Lock()
	failed := s.archiveFailed
	s.mu.Unlock()
	if failed {
		return
	}

	if err := s.Archive.Append(samples); err != nil {
		s.log.Error("archive append failed, archiving stops for this session",
			logger.String("path", s.Archive.Path()),
			logger.Error(err))
		s.mu.Lock()
		s.archiveFailed = true
		s.mu.Unlock()
		return
	}
	s.Metrics.SetArchiveBytes(s.Archive.DataBytes())
}

// persist stores and publishes u. Failures are logged only.
func (s *Session) persist(ctx context.Context, u *datastore.Utterance) {
	if s.Store != nil {
		if err := s.Store.Save(u); err != nil {
			s.log.Error("failed to store utterance", logger.Error(err))
		}
	}
	if s.Publisher != nil {
		if err := mqtt.PublishUtterance(ctx, s.Publisher, u); err != nil {
			s.log.Warn("failed to publish utterance", logger.Error(err))
		}
	}
}

// Close stops capture, archives the samples still buffered, finalizes the
// archive and closes every output. Only the first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.shutdown()
	})
	return s.closeErr
}

func (s *Session) shutdown() error {
	var errs []error

	if err := s.Source.Stop(); err != nil {
		errs = append(errs, err)
	}
	s.Buffer.Stop()

	if s.Archive != nil {
		s.archiveSamples(s.Buffer.Drain())
		if err := s.Archive.Finalize(); err != nil {
			errs = append(errs, err)
		} else {
			s.log.Info("archive finalized",
				logger.String("path", s.Archive.Path()),
				logger.Int64("data_bytes", int64(s.Archive.DataBytes())))
		}
	}

	if err := s.Transcript.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Publisher != nil {
		s.Publisher.Disconnect()
	}
	if c, ok := s.Translator.(interface{ Close() }); ok {
		c.Close()
	}

	stats := s.Buffer.Stats()
	s.log.Info("capture session closed",
		logger.Int("utterances", s.Transcript.Count()),
		logger.Uint64("blocks_accepted", stats.BlocksAccepted),
		logger.Uint64("blocks_discarded", stats.BlocksDiscarded),
		logger.Duration("duration", s.Clock().Sub(s.startedAt)))

	return errors.Join(errs...)
}

// Status reports the live session state
func (s *Session) Status() telemetry.Status {
	stats := s.Buffer.Stats()

	s.mu.Lock()
	status := telemetry.Status{
		SessionID:       s.config.ID,
		StartedAt:       s.startedAt,
		Uptime:          s.Clock().Sub(s.startedAt),
		Capturing:       stats.Capturing,
		BufferedSamples: stats.Buffered,
		PendingSamples:  stats.Pending,
		BlocksAccepted:  stats.BlocksAccepted,
		BlocksDiscarded: stats.BlocksDiscarded,
		Resets:          stats.Resets,
		Utterances:      s.sequence,
		LastText:        s.lastText,
		System:          s.system,
	}
	s.mu.Unlock()

	if s.Archive != nil {
		status.ArchiveBytes = s.Archive.DataBytes()
	}
	if d, ok := s.Source.(interface{ DeviceName() string }); ok {
		status.Device = d.DeviceName()
	}
	return status
}
