package gpu

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// ManagerOptions restrict which enumerated devices are eligible.
type ManagerOptions struct {
	// AllowCPU admits CPU-class devices. Only GPU and accelerator devices
	// are considered otherwise.
	AllowCPU bool
	// Platform and Device keep only devices whose names contain them.
	Platform string
	Device   string
	Logger   *log.Logger
}

// Manager owns the selected device and its single context/queue for the
// lifetime of an engine. There is no multi-device support.
type Manager struct {
	device Device
	ctx    Context
	log    *log.Logger
}

// NewManager enumerates every platform, picks a device with SelectDevice and
// opens it.
func NewManager(opts ManagerOptions, platforms ...Platform) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	var candidates []Device
	for _, p := range platforms {
		if opts.Platform != "" && !strings.Contains(p.Name(), opts.Platform) {
			continue
		}
		devices, err := p.Devices()
		if err != nil {
			return nil, fmt.Errorf("gpu: enumerating platform %q: %w", p.Name(), err)
		}
		for _, d := range devices {
			info := d.Info()
			if info.Type == DeviceCPU && !opts.AllowCPU {
				continue
			}
			if opts.Device != "" && !strings.Contains(info.Name, opts.Device) {
				continue
			}
			logger.Printf("found device: %s", info)
			candidates = append(candidates, d)
		}
	}

	device, err := SelectDevice(candidates)
	if err != nil {
		return nil, err
	}

	ctx, err := device.Open()
	if err != nil {
		return nil, fmt.Errorf("gpu: opening %s: %w", device.Info().Name, err)
	}
	logger.Printf("using device: %s", device.Info())

	return &Manager{device: device, ctx: ctx, log: logger}, nil
}

// SelectDevice returns the device with the most compute units. GPU and
// accelerator devices always rank ahead of CPU devices, whatever their unit
// counts. Ties go to the first one enumerated.
func SelectDevice(devices []Device) (Device, error) {
	if len(devices) == 0 {
		return nil, ErrNoComputeDevice
	}
	best := devices[0]
	for _, d := range devices[1:] {
		if better(d.Info(), best.Info()) {
			best = d
		}
	}
	return best, nil
}

func better(a, b DeviceInfo) bool {
	aCPU, bCPU := a.Type == DeviceCPU, b.Type == DeviceCPU
	if aCPU != bCPU {
		return bCPU
	}
	return a.ComputeUnits > b.ComputeUnits
}

// Device returns the selected device's description.
func (m *Manager) Device() DeviceInfo { return m.device.Info() }

// Context returns the context/queue bound to the selected device.
func (m *Manager) Context() Context { return m.ctx }

// Close releases the context and its queue.
func (m *Manager) Close() error {
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Release()
	m.ctx = nil
	return err
}
