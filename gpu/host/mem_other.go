//go:build !linux

package host

func totalMemory() uint64 { return fallbackMemory }
