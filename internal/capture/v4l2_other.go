//go:build !linux

package capture

import "errors"

// ErrUnsupported is returned on platforms without V4L2.
var ErrUnsupported = errors.New("capture: v4l2 capture requires linux")

// NewV4L2Source is unavailable off Linux.
func NewV4L2Source(Options) (Source, error) {
	return nil, ErrUnsupported
}
