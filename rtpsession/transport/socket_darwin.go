//go:build darwin

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// applyVoiceSocketOptions configures conn for low-latency real-time
// media on Darwin, adapted from the teacher's
// transport_socket_darwin.go setSockOpt* helpers.
func applyVoiceSocketOptions(conn *net.UDPConn, dscp int) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var ctrlErr error
	err = rawConn.Control(func(fd uintptr) {
		ctrlErr = setVoiceOptimizations(int(fd))
		if ctrlErr != nil {
			return
		}
		ctrlErr = setDSCP(int(fd), dscp)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

func setVoiceOptimizations(fd int) error {
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_NOSIGPIPE, 1); err != nil {
		return err
	}
	return nil
}

// setDSCP marks outgoing packets with dscp. macOS also exposes a
// SO_TRAFFIC_CLASS mapping closer to Apple's own QoS model; the
// numeric class below mirrors the teacher's convertDSCPToTrafficClass
// table.
func setDSCP(fd, dscp int) error {
	tos := dscp << 2
	if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_IP, syscall.IP_TOS, tos); err != nil {
		return nil
	}
	_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)

	const soTrafficClass = 0x1001
	_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, soTrafficClass, trafficClassFor(dscp))
	return nil
}

func trafficClassFor(dscp int) int {
	const (
		tcBestEffort = 0
		tcVideo      = 2
		tcVoice      = 3
		tcAV         = 4
	)
	switch dscp {
	case DSCPExpeditedForwarding:
		return tcVoice
	case DSCPAssuredForwarding:
		return tcVideo
	case 24, 26, 28, 30:
		return tcAV
	default:
		return tcBestEffort
	}
}
