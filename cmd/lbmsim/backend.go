package main

import (
	"errors"
	"fmt"
	"strings"

	"fluidlbm/config"
	"fluidlbm/gpu"
	"fluidlbm/gpu/host"
	"fluidlbm/gpu/opencl"
)

// buildPlatforms returns the platforms to enumerate for the configured
// backend and whether CPU-class devices are admitted. With "auto" the host
// platform is a fallback: gpu.SelectDevice ranks any OpenCL GPU ahead of it.
func buildPlatforms(d config.DeviceSettings) ([]gpu.Platform, bool, error) {
	hostPlatform := func() gpu.Platform {
		var opts []host.Option
		if d.MemoryLimitMB > 0 {
			opts = append(opts, host.WithMemoryLimit(uint64(d.MemoryLimitMB)<<20))
		}
		return host.NewPlatform(opts...)
	}

	switch strings.ToLower(d.Backend) {
	case "host":
		return []gpu.Platform{hostPlatform()}, true, nil
	case "opencl":
		platforms, err := opencl.Platforms()
		if err != nil {
			return nil, false, err
		}
		return platforms, false, nil
	case "auto", "":
		platforms, err := opencl.Platforms()
		if err != nil && !errors.Is(err, gpu.ErrBackendUnavailable) {
			return nil, false, err
		}
		return append(platforms, hostPlatform()), true, nil
	default:
		return nil, false, fmt.Errorf("unknown backend %q", d.Backend)
	}
}
