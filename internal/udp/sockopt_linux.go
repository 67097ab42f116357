package udp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// allowBroadcast sets SO_BROADCAST so GDL90 can target x.x.x.255.
func allowBroadcast(network, address string, rc syscall.RawConn) error {
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return serr
}
