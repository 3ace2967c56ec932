//go:build windows

package device

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"
)

func probeWebGPU(int) (desc string, err error) {
	// The native library is loaded lazily and panics when it is missing.
	defer func() {
		if r := recover(); r != nil {
			desc, err = "", fmt.Errorf("webgpu native library not available: %v", r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return "", fmt.Errorf("webgpu instance: %w", err)
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return "", fmt.Errorf("webgpu adapter: %w", err)
	}
	defer adapter.Release()
	return "webgpu default adapter", nil
}
