//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package proxy

import (
	"errors"
	"syscall"
)

const reusePortSupported = false

func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return errors.New("SO_REUSEPORT not supported")
}
