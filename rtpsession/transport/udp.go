package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// ErrTransportClosed is reported to the completion callback of any
// send issued after Shutdown has been called. RecvLoop does not return
// it: it returns nil once its read loops have exited.
var ErrTransportClosed = errors.New("transport: closed")

// UDPTransport is the reference PacketTransport adapter, grounded on
// the teacher's UDPTransport (pkg/rtp/transport_udp.go) but rebuilt
// around the non-blocking send + completion-callback contract
// PacketTransport requires, with independent RTP and RTCP sockets
// (collapsed to one when Config.RTCPMux is set).
type UDPTransport struct {
	cfg Config

	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn // nil when RTCPMux

	remoteRTP  *net.UDPAddr
	remoteRTCP *net.UDPAddr

	mu     sync.RWMutex
	closed int32
}

// NewUDPTransport binds the local RTP (and, unless RTCPMux, RTCP)
// sockets and resolves the remote addresses. Socket buffer sizing and
// DSCP marking follow setSockOptForVoice's intent from the teacher,
// applied through the platform-specific helpers in this package.
func NewUDPTransport(cfg Config) (*UDPTransport, error) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1500
	}

	rtpConn, err := listenUDP(cfg.LocalRTPAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolving local RTP address: %w", err)
	}
	if err := applyVoiceSocketOptions(rtpConn, cfg.DSCP); err != nil {
		rtpConn.Close()
		return nil, fmt.Errorf("transport: configuring RTP socket: %w", err)
	}

	t := &UDPTransport{cfg: cfg, rtpConn: rtpConn}

	if !cfg.RTCPMux {
		rtcpConn, err := listenUDP(cfg.LocalRTCPAddr)
		if err != nil {
			rtpConn.Close()
			return nil, fmt.Errorf("transport: resolving local RTCP address: %w", err)
		}
		if err := applyVoiceSocketOptions(rtcpConn, cfg.DSCP); err != nil {
			rtpConn.Close()
			rtcpConn.Close()
			return nil, fmt.Errorf("transport: configuring RTCP socket: %w", err)
		}
		t.rtcpConn = rtcpConn
	}

	if cfg.RemoteRTPAddr != "" {
		addr, err := net.ResolveUDPAddr("udp", cfg.RemoteRTPAddr)
		if err != nil {
			t.Shutdown()
			return nil, fmt.Errorf("transport: resolving remote RTP address: %w", err)
		}
		t.remoteRTP = addr
	}
	if cfg.RemoteRTCPAddr != "" {
		addr, err := net.ResolveUDPAddr("udp", cfg.RemoteRTCPAddr)
		if err != nil {
			t.Shutdown()
			return nil, fmt.Errorf("transport: resolving remote RTCP address: %w", err)
		}
		t.remoteRTCP = addr
	}

	return t, nil
}

func listenUDP(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", udpAddr)
}

// SendRTP implements PacketTransport. Send errors are reported
// synchronously to done on the calling goroutine since UDP writes
// never block long enough to warrant a separate completion goroutine;
// the callback shape is kept for interface uniformity with transports
// that do need it (e.g. a DTLS-wrapped one).
func (t *UDPTransport) SendRTP(data []byte, subflowHint int, done CompletionFunc) {
	t.mu.RLock()
	remote := t.remoteRTP
	conn := t.rtpConn
	t.mu.RUnlock()

	if atomic.LoadInt32(&t.closed) != 0 {
		complete(done, ErrTransportClosed)
		return
	}
	if remote == nil {
		complete(done, fmt.Errorf("transport: no remote RTP address set"))
		return
	}
	_, err := conn.WriteToUDP(data, remote)
	complete(done, err)
}

// SendRTCP implements PacketTransport, writing to the RTCP socket or
// the shared RTP socket when RTCPMux is negotiated.
func (t *UDPTransport) SendRTCP(data []byte, done CompletionFunc) {
	t.mu.RLock()
	conn := t.rtcpConn
	remote := t.remoteRTCP
	if t.cfg.RTCPMux {
		conn = t.rtpConn
		remote = t.remoteRTP
	}
	t.mu.RUnlock()

	if atomic.LoadInt32(&t.closed) != 0 {
		complete(done, ErrTransportClosed)
		return
	}
	if remote == nil {
		complete(done, fmt.Errorf("transport: no remote RTCP address set"))
		return
	}
	_, err := conn.WriteToUDP(data, remote)
	complete(done, err)
}

func complete(done CompletionFunc, err error) {
	if done != nil {
		done(err)
	}
}

// RecvLoop implements PacketTransport, running one goroutine per
// socket (or a single one when RTCPMux collapses them) until ctx is
// cancelled.
func (t *UDPTransport) RecvLoop(ctx context.Context, onRTP func([]byte, net.Addr), onRTCP func([]byte, net.Addr)) error {
	var wg sync.WaitGroup

	readLoop := func(conn *net.UDPConn, dispatch func([]byte, net.Addr)) {
		defer wg.Done()
		buf := make([]byte, t.cfg.BufferSize)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				if atomic.LoadInt32(&t.closed) != 0 {
					return
				}
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					continue
				}
				continue
			}
			t.learnRemote(conn, addr)
			payload := make([]byte, n)
			copy(payload, buf[:n])
			dispatch(payload, addr)
		}
	}

	wg.Add(1)
	go readLoop(t.rtpConn, onRTP)

	if !t.cfg.RTCPMux {
		wg.Add(1)
		go readLoop(t.rtcpConn, onRTCP)
	}

	wg.Wait()
	return nil
}

// learnRemote mirrors the teacher's "set remote address on first
// packet" convenience, scoped to whichever socket the packet arrived
// on.
func (t *UDPTransport) learnRemote(conn *net.UDPConn, addr *net.UDPAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch conn {
	case t.rtpConn:
		if t.remoteRTP == nil {
			t.remoteRTP = addr
		}
	case t.rtcpConn:
		if t.remoteRTCP == nil {
			t.remoteRTCP = addr
		}
	}
}

// Shutdown implements PacketTransport.
func (t *UDPTransport) Shutdown() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	var firstErr error
	if t.rtpConn != nil {
		if err := t.rtpConn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if t.rtcpConn != nil {
		if err := t.rtcpConn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
