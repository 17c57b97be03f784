package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// MalgoSource implements Source using malgo
type MalgoSource struct {
	config       CaptureConfig
	device       *malgo.Device
	deviceInfo   *malgo.DeviceInfo
	malgoContext *malgo.AllocatedContext
	frames       chan Frame
	errors       chan error
	running      bool
	closed       bool
	mu           sync.Mutex
	stopChan     chan struct{}
	wg           sync.WaitGroup

	// touched from malgo callbacks
	stopping     atomic.Bool
	framesSeen   atomic.Int64
	framesLost   atomic.Int64
	overflowHook func()
}

// NewMalgoSource creates a new malgo-based capture source
func NewMalgoSource(config CaptureConfig) (*MalgoSource, error) {
	if config.Channels == 0 || config.SampleRate == 0 {
		return nil, fmt.Errorf("invalid capture config: %d channels at %d Hz", config.Channels, config.SampleRate)
	}
	queue := config.QueueSize
	if queue <= 0 {
		queue = DefaultConfig().QueueSize
	}
	return &MalgoSource{
		config:   config,
		frames:   make(chan Frame, queue),
		errors:   make(chan error, 8),
		stopChan: make(chan struct{}),
	}, nil
}

// OnOverflow registers a hook called from the audio thread whenever a frame
// is dropped because the hand-off channel is full. It must not block.
func (m *MalgoSource) OnOverflow(hook func()) {
	m.overflowHook = hook
}

// Start begins audio capture
func (m *MalgoSource) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("capture source is closed")
	}
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("capture source is already running")
	}
	if err := m.openLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
			m.shutdown()
		case <-m.stopChan:
		}
	}()

	return nil
}

// Reconnect tears the device down and opens it again with the same
// configuration. Frame timestamps keep counting from where they stopped.
func (m *MalgoSource) Reconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("capture source is closed")
	}
	m.teardownLocked()
	if err := m.openLocked(); err != nil {
		m.running = false
		return err
	}
	m.running = true
	return nil
}

// Stop stops audio capture and closes the channels
func (m *MalgoSource) Stop() error {
	err := m.shutdown()
	m.wg.Wait()
	return err
}

func (m *MalgoSource) shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.running = false
	close(m.stopChan)

	err := m.teardownLocked()

	close(m.frames)
	close(m.errors)

	if lost := m.framesLost.Load(); lost > 0 {
		slog.Warn("capture dropped frames", "frames", lost)
	}
	return err
}

// Frames returns a channel that receives audio frames
func (m *MalgoSource) Frames() <-chan Frame {
	return m.frames
}

// Errors returns a channel that receives capture errors
func (m *MalgoSource) Errors() <-chan error {
	return m.errors
}

// IsRunning returns true if capture is currently active
func (m *MalgoSource) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MalgoSource) openLocked() error {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	m.malgoContext = malgoCtx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	switch m.config.Format {
	case FormatI16:
		deviceConfig.Capture.Format = malgo.FormatS16
	default:
		deviceConfig.Capture.Format = malgo.FormatF32
	}
	deviceConfig.Capture.Channels = m.config.Channels
	deviceConfig.SampleRate = m.config.SampleRate
	deviceConfig.PeriodSizeInFrames = m.config.BufferFrames

	if m.config.DeviceName != "" {
		info, err := findCaptureDevice(malgoCtx, m.config.DeviceName)
		if err != nil {
			m.releaseContextLocked()
			return err
		}
		m.deviceInfo = info
		deviceConfig.Capture.DeviceID = m.deviceInfo.ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: m.onData,
		Stop: m.onStop,
	}

	device, err := malgo.InitDevice(m.malgoContext.Context, deviceConfig, callbacks)
	if err != nil {
		m.releaseContextLocked()
		return fmt.Errorf("failed to initialize device: %w", err)
	}
	m.device = device

	m.stopping.Store(false)
	if err := device.Start(); err != nil {
		m.stopping.Store(true)
		device.Uninit()
		m.device = nil
		m.releaseContextLocked()
		return fmt.Errorf("failed to start device: %w", err)
	}

	slog.Debug("capture device started",
		"device", m.config.DeviceName,
		"rate", m.config.SampleRate,
		"channels", m.config.Channels,
		"format", m.config.Format.String())
	return nil
}

func (m *MalgoSource) teardownLocked() error {
	m.stopping.Store(true)

	var err error
	if m.device != nil {
		if stopErr := m.device.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop device: %w", stopErr)
		}
		m.device.Uninit()
		m.device = nil
	}
	m.releaseContextLocked()
	return err
}

func (m *MalgoSource) releaseContextLocked() {
	if m.malgoContext != nil {
		_ = m.malgoContext.Uninit()
		m.malgoContext.Free()
		m.malgoContext = nil
	}
	m.deviceInfo = nil
}

// onData runs on the audio thread: convert, timestamp, hand off, never block.
func (m *MalgoSource) onData(_, pInputSamples []byte, framecount uint32) {
	start := m.framesSeen.Add(int64(framecount)) - int64(framecount)

	frame := Frame{
		Samples:    Decode(pInputSamples, m.config.Format),
		Channels:   int(m.config.Channels),
		SampleRate: int(m.config.SampleRate),
		Format:     m.config.Format,
		Timestamp:  DurationOf(int(start), int(m.config.SampleRate)),
	}

	select {
	case m.frames <- frame:
	default:
		m.framesLost.Add(1)
		if m.overflowHook != nil {
			m.overflowHook()
		}
	}
}

// onStop fires when the backend stops the device. Outside of our own
// teardown that means the device went away.
func (m *MalgoSource) onStop() {
	if m.stopping.Load() {
		return
	}
	select {
	case m.errors <- ErrDeviceLost:
	default:
	}
}
