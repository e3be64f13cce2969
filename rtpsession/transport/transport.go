// Package transport defines the PacketTransport contract a Session
// consumes and a concrete UDP reference adapter. Grounded on the
// teacher's pkg/rtp/transport.go interface shape and
// pkg/rtp/transport_udp.go's UDP implementation, reworked from a
// synchronous Send/Receive pair into a non-blocking,
// completion-callback contract so a Session's single logical task is
// never blocked on I/O.
package transport

import (
	"context"
	"net"
)

// CompletionFunc reports the outcome of a non-blocking send. err is
// nil on success; failed sends are reported through this callback
// rather than a synchronous error return.
type CompletionFunc func(err error)

// PacketTransport is the boundary a Session calls across to move
// bytes on and off the wire. Implementations may invoke onRTP/onRTCP
// from goroutines of their own (UDPTransport uses one read goroutine
// per socket); Session handles each callback directly on the goroutine
// that delivers it.
type PacketTransport interface {
	// SendRTP transmits an already-serialised RTP packet. subflowHint
	// names the MPRTP flow id to prefer for multi-path transports; -1
	// when MPRTP is not in use. Non-blocking; completion is reported
	// via done, which may be nil if the caller doesn't care.
	SendRTP(data []byte, subflowHint int, done CompletionFunc)

	// SendRTCP transmits an already-serialised compound RTCP packet.
	SendRTCP(data []byte, done CompletionFunc)

	// RecvLoop runs until ctx is cancelled or Shutdown is called,
	// invoking onRTP/onRTCP with each received payload and its source
	// address. It blocks the calling goroutine — callers run it in its
	// own goroutine, as Session does.
	RecvLoop(ctx context.Context, onRTP func(data []byte, src net.Addr), onRTCP func(data []byte, src net.Addr)) error

	// Shutdown cancels pending I/O. Completion callbacks for
	// operations in flight at the time of the call still fire, with a
	// cancellation error.
	Shutdown() error
}

// Config is shared UDP/DTLS-agnostic transport configuration,
// following the teacher's TransportConfig naming.
type Config struct {
	LocalRTPAddr   string
	RemoteRTPAddr  string
	LocalRTCPAddr  string
	RemoteRTCPAddr string
	RTCPMux        bool
	BufferSize     int
	// DSCP is the Differentiated Services Code Point to mark outgoing
	// packets with (e.g. 46 = Expedited Forwarding for voice).
	DSCP int
}

// DefaultConfig mirrors the teacher's DefaultTransportConfig, sized
// for a standard Ethernet MTU.
func DefaultConfig() Config {
	return Config{BufferSize: 1500, DSCP: DSCPExpeditedForwarding}
}

// DSCP class selectors relevant to real-time media, named the way the
// teacher's transport_socket_darwin.go comments reference them.
const (
	DSCPExpeditedForwarding = 46
	DSCPAssuredForwarding   = 34
)
