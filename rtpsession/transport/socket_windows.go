//go:build windows

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/windows"
)

// applyVoiceSocketOptions configures conn for low-latency real-time
// media on Windows, adapted from the teacher's
// transport_socket_windows.go setSockOpt* helpers. DSCP marking on
// Windows commonly requires elevated privileges; failures here are
// deliberately swallowed rather than surfaced, matching the teacher's
// "not critical" handling.
func applyVoiceSocketOptions(conn *net.UDPConn, dscp int) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	rawConn.Control(func(fd uintptr) {
		handle := syscall.Handle(fd)
		_ = syscall.SetsockoptInt(handle, syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)
		_ = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_EXCLUSIVEADDRUSE, 1)
		setDSCP(int(fd), dscp)
	})
	return nil
}

func setDSCP(fd, dscp int) {
	handle := syscall.Handle(fd)
	tos := dscp << 2
	if err := syscall.SetsockoptInt(handle, syscall.IPPROTO_IP, syscall.IP_TOS, tos); err != nil {
		return
	}
	_ = syscall.SetsockoptInt(handle, syscall.IPPROTO_IPV6, windows.IPV6_TCLASS, tos)
}
