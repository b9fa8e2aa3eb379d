//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: %w", err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(infos))
	for _, d := range infos {
		// The raw device ID round-trips through hex so DeviceInfo
		// stays a plain string pair.
		devices = append(devices, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return devices, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig, callback DataCallback) (CaptureDevice, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = config.Channels
	cfg.SampleRate = config.SampleRate

	if device != nil {
		raw, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("malgo device id %q: %w", device.ID, err)
		}
		var id malgo.DeviceID
		copy(id[:], raw)
		cfg.Capture.DeviceID = id.Pointer()
	}

	dev, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			callback(data, frameCount)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("malgo init device: %w", err)
	}
	return &malgoCapture{device: dev}, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device *malgo.Device
}

func (c *malgoCapture) Start() error { return c.device.Start() }
func (c *malgoCapture) Stop()        { c.device.Stop() }
func (c *malgoCapture) Close()       { c.device.Uninit() }
