package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopbackPair(t *testing.T) (a, b *UDPTransport) {
	t.Helper()
	a, err := NewUDPTransport(Config{LocalRTPAddr: "127.0.0.1:0", LocalRTCPAddr: "127.0.0.1:0", BufferSize: 1500})
	require.NoError(t, err)
	t.Cleanup(func() { a.Shutdown() })

	b, err = NewUDPTransport(Config{
		LocalRTPAddr:  "127.0.0.1:0",
		LocalRTCPAddr: "127.0.0.1:0",
		RemoteRTPAddr: a.rtpConn.LocalAddr().String(),
		BufferSize:    1500,
	})
	require.NoError(t, err)
	t.Cleanup(func() { b.Shutdown() })

	a.remoteRTP = b.rtpConn.LocalAddr().(*net.UDPAddr)
	return a, b
}

func TestUDPTransportSendRTPRoundTrip(t *testing.T) {
	a, b := newLoopbackPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan []byte, 1)
	go a.RecvLoop(ctx, func(data []byte, _ net.Addr) { received <- data }, func([]byte, net.Addr) {})

	var sendErr error
	done := make(chan struct{})
	b.SendRTP([]byte{0x80, 0x60, 0x00, 0x01}, -1, func(err error) { sendErr = err; close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SendRTP completion never fired")
	}
	require.NoError(t, sendErr)

	select {
	case got := <-received:
		assert.Equal(t, []byte{0x80, 0x60, 0x00, 0x01}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("RecvLoop never dispatched the datagram")
	}
}

func TestUDPTransportRTCPMuxSharesSocket(t *testing.T) {
	a, err := NewUDPTransport(Config{LocalRTPAddr: "127.0.0.1:0", RTCPMux: true, BufferSize: 1500})
	require.NoError(t, err)
	defer a.Shutdown()
	assert.Nil(t, a.rtcpConn)

	b, err := NewUDPTransport(Config{LocalRTPAddr: "127.0.0.1:0", RTCPMux: true, RemoteRTPAddr: a.rtpConn.LocalAddr().String(), BufferSize: 1500})
	require.NoError(t, err)
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rtcpCh := make(chan []byte, 1)
	go a.RecvLoop(ctx, func([]byte, net.Addr) {}, func(data []byte, _ net.Addr) { rtcpCh <- data })

	b.SendRTCP([]byte{0x80, 0xC9, 0x00, 0x01}, nil)

	select {
	case got := <-rtcpCh:
		assert.Equal(t, []byte{0x80, 0xC9, 0x00, 0x01}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("RTCP datagram never arrived on the muxed socket")
	}
}

func TestUDPTransportSendAfterShutdownReportsClosed(t *testing.T) {
	a, _ := newLoopbackPair(t)
	require.NoError(t, a.Shutdown())

	var gotErr error
	a.SendRTP([]byte{0x01}, -1, func(err error) { gotErr = err })
	assert.ErrorIs(t, gotErr, ErrTransportClosed)
}

func TestUDPTransportSendRTPWithoutRemoteErrors(t *testing.T) {
	a, err := NewUDPTransport(Config{LocalRTPAddr: "127.0.0.1:0", LocalRTCPAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer a.Shutdown()

	var gotErr error
	a.SendRTP([]byte{0x01}, -1, func(err error) { gotErr = err })
	assert.Error(t, gotErr)
}
