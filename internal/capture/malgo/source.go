// Package malgo captures microphone audio with miniaudio and feeds it to a
// capture.StreamBuffer.
package malgo

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/logger"
)

const componentDevice = "capture.device"

// GetLogger returns the capture device logger
func GetLogger() logger.Logger {
	return logger.Global().Module("capture").Module("device")
}

// Sink receives raw little-endian float32 blocks from the device callback
type Sink interface {
	Write(block []byte) error
}

// Config describes the capture format
type Config struct {
	Source       string // device name or ID, empty for the system default
	SampleRate   uint32
	PeriodFrames uint32
}

// Source owns a malgo capture device opened as mono 32-bit float.
type Source struct {
	config Config
	sink   Sink

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	info   DeviceInfo

	// running is cleared before the device is stopped so that the driver's
	// stop callback can tell a requested stop from a device failure
	running atomic.Bool

	errCh   chan error
	errOnce sync.Once
}

// NewSource returns an unopened source delivering blocks to sink
func NewSource(config Config, sink Sink) *Source {
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.PeriodFrames == 0 {
		config.PeriodFrames = 1024
	}
	return &Source{
		config: config,
		sink:   sink,
		errCh:  make(chan error, 1),
	}
}

// Errors delivers the first fatal callback error. It is never closed.
func (s *Source) Errors() <-chan error {
	return s.errCh
}

// Device returns the opened device, valid after Start
func (s *Source) Device() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Start opens the selected device and starts capturing.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		return errors.New(nil).
			Component(componentDevice).
			Category(errors.CategoryState).
			Context("error", "capture device already started").
			Build()
	}

	ctx, err := initContext()
	if err != nil {
		return err
	}

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		_ = ctx.Uninit()
		return errors.New(err).
			Component(componentDevice).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := describeDevices(infos)
	selected, err := SelectDevice(devices, s.config.Source)
	if err != nil {
		_ = ctx.Uninit()
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = infos[selected.Index].ID.Pointer()
	deviceConfig.SampleRate = s.config.SampleRate
	deviceConfig.PeriodSizeInFrames = s.config.PeriodFrames
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		_ = ctx.Uninit()
		return errors.New(err).
			Component(componentDevice).
			Category(errors.CategoryAudioSource).
			Context("device_name", selected.Name).
			Context("operation", "init_device").
			Build()
	}

	s.info = selected
	s.running.Store(true)
	if err := device.Start(); err != nil {
		s.running.Store(false)
		device.Uninit()
		_ = ctx.Uninit()
		return errors.New(err).
			Component(componentDevice).
			Category(errors.CategoryAudioSource).
			Context("device_name", selected.Name).
			Context("operation", "start_device").
			Build()
	}

	s.ctx = ctx
	s.device = device

	GetLogger().Info("capture device started",
		logger.String("device", selected.Name),
		logger.String("id", selected.ID),
		logger.Int("sample_rate", int(s.config.SampleRate)),
		logger.Int("period_frames", int(s.config.PeriodFrames)))

	return nil
}

// Stop stops and releases the device. Stopping a stopped source is a no-op.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return nil
	}

	s.running.Store(false)

	var stopErr error
	if err := s.device.Stop(); err != nil {
		stopErr = errors.New(err).
			Component(componentDevice).
			Category(errors.CategoryAudioSource).
			Context("operation", "stop_device").
			Build()
	}
	s.device.Uninit()
	s.device = nil

	if err := s.ctx.Uninit(); err != nil && stopErr == nil {
		stopErr = errors.New(err).
			Component(componentDevice).
			Category(errors.CategoryAudioSource).
			Context("operation", "uninit_context").
			Build()
	}
	s.ctx = nil

	GetLogger().Info("capture device stopped", logger.String("device", s.info.Name))
	return stopErr
}

// onData runs on the driver thread
func (s *Source) onData(_, input []byte, _ uint32) {
	if err := s.sink.Write(input); err != nil {
		s.fail(err)
	}
}

// onStop runs when the driver stops the device, including after Stop
func (s *Source) onStop() {
	if !s.running.Load() {
		return
	}
	s.fail(errors.New(nil).
		Component(componentDevice).
		Category(errors.CategoryAudioSource).
		Context("device_name", s.info.Name).
		Context("error", "audio device stopped unexpectedly").
		Build())
}

func (s *Source) fail(err error) {
	s.errOnce.Do(func() {
		s.errCh <- err
	})
}

// DeviceName returns the name of the opened device
func (s *Source) DeviceName() string {
	return s.Device().Name
}
