//go:build !linux

package platform

import "errors"

func clockResolutionUsecs() (int64, error) {
	return 0, errors.ErrUnsupported
}
