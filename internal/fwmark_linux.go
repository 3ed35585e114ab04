//go:build linux

package internal

import (
	"fmt"
	"syscall"
)

// setSocketMark tags the socket with a routing mark so dials can be
// steered by policy routing. SO_MARK = 36 on Linux.
func setSocketMark(fd uintptr, mark uint32) error {
	if mark == 0 {
		return nil
	}
	if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_MARK, int(mark)); err != nil {
		return fmt.Errorf("setsockopt SO_MARK=%d: %w", mark, err)
	}
	return nil
}
