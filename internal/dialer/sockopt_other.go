//go:build !linux

package dialer

import (
	"syscall"
	"time"
)

func setUserTimeout(syscall.RawConn, time.Duration) error {
	return nil
}
