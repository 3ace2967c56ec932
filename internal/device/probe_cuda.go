//go:build cuda

package device

import (
	"fmt"

	"gorgonia.org/cu"
)

func probeCUDA(index int) (string, error) {
	n, err := cu.NumDevices()
	if err != nil {
		return "", fmt.Errorf("cuda driver: %w", err)
	}
	if index >= n {
		return "", fmt.Errorf("cuda device %d requested, %d present", index, n)
	}
	dev, err := cu.GetDevice(index)
	if err != nil {
		return "", fmt.Errorf("cuda device %d: %w", index, err)
	}
	name, _ := dev.Name()
	mem, _ := dev.TotalMem()
	return fmt.Sprintf("%s (%d MiB)", name, mem>>20), nil
}
