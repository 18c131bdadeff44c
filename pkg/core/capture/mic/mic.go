// Package mic captures raw PCM audio from the default input device.
package mic

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"

	"github.com/recollect-ai/recolld/pkg/core/capture"
)

// Source opens capture devices backed by the system audio driver.
// It implements capture.Microphone.
type Source struct {
	logger *slog.Logger
}

// NewSource creates a microphone source. A nil logger uses slog.Default.
func NewSource(logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{logger: logger}
}

// Open acquires the default capture device. onFrame is invoked on the audio
// driver thread with a copy of each captured PCM frame; it must not block.
func (s *Source) Open(cfg capture.AudioConfig, onFrame func([]byte)) (capture.MicDevice, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	allocated, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	s.logDevices(allocated)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.ChunkFrames)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			// The driver reuses its buffer between callbacks.
			frame := make([]byte, len(input))
			copy(frame, input)
			onFrame(frame)
		},
	}

	device, err := malgo.InitDevice(allocated.Context, deviceConfig, callbacks)
	if err != nil {
		allocated.Uninit()
		allocated.Free()
		return nil, fmt.Errorf("init capture device: %w", err)
	}

	return &malgoDevice{ctx: allocated, device: device}, nil
}

func (s *Source) logDevices(ctx *malgo.AllocatedContext) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		s.logger.Warn("unable to enumerate capture devices", "error", err)
		return
	}
	s.logger.Info("capture devices detected", "count", len(infos))
	for _, info := range infos {
		s.logger.Info("capture device", "name", info.Name(), "default", info.IsDefault)
	}
}

// malgoDevice is an open capture device.
type malgoDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// Start begins delivering frames to the callback.
func (d *malgoDevice) Start() error {
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("start capture device: %w", err)
	}
	return nil
}

// Stop halts capture and releases the device and driver context.
func (d *malgoDevice) Stop() {
	d.device.Stop()
	d.device.Uninit()
	d.ctx.Uninit()
	d.ctx.Free()
}
