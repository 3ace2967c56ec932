//go:build !windows

package device

import "errors"

func probeWebGPU(int) (string, error) {
	return "", errors.New("webgpu is only built on windows")
}
