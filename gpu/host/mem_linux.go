//go:build linux

package host

import "golang.org/x/sys/unix"

// totalMemory reports physical RAM, the host device's "global memory".
func totalMemory() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return fallbackMemory
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
