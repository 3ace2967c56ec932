//go:build !cuda

package device

import "errors"

func probeCUDA(int) (string, error) {
	return "", errors.New("built without the cuda tag")
}
