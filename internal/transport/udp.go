// Package transport owns the UDP sockets the engine receives measurements
// on and broadcasts filtered events from. The sockets are acquired once at
// startup and released on shutdown; failure to bind aborts startup.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"ampfilter/internal/logger"
)

// Config holds the socket endpoints.
type Config struct {
	ReceivePort   int
	BindAddr      string
	SendPort      int
	BroadcastAddr string
}

// UDP is a connectionless, broadcast-capable transport with one inbound
// and one outbound socket.
type UDP struct {
	recvConn *net.UDPConn
	sendConn *net.UDPConn
}

const (
	// readPollInterval bounds how long Receive blocks before rechecking
	// for cancellation.
	readPollInterval = 250 * time.Millisecond

	maxDatagramSize = 65536

	socketBufferSize = 2 * 1024 * 1024
)

// Open binds the inbound socket and dials the outbound broadcast socket.
func Open(cfg Config) (*UDP, error) {
	log := logger.WithComponent("transport")

	recvAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.ReceivePort))
	if err != nil {
		return nil, fmt.Errorf("resolve receive address: %w", err)
	}
	recvConn, err := net.ListenUDP("udp4", recvAddr)
	if err != nil {
		return nil, fmt.Errorf("bind receive port %d: %w", cfg.ReceivePort, err)
	}

	// Larger OS buffer to survive bursts; some systems cap this, so a
	// failure is only worth a warning.
	if err := recvConn.SetReadBuffer(socketBufferSize); err != nil {
		log.Warn().Err(err).Int("size", socketBufferSize).Msg("could not set UDP read buffer")
	}

	sendAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", cfg.BroadcastAddr, cfg.SendPort))
	if err != nil {
		recvConn.Close()
		return nil, fmt.Errorf("resolve broadcast address: %w", err)
	}
	sendConn, err := net.DialUDP("udp4", nil, sendAddr)
	if err != nil {
		recvConn.Close()
		return nil, fmt.Errorf("dial broadcast address %s: %w", sendAddr, err)
	}
	if err := enableBroadcast(sendConn); err != nil {
		log.Warn().Err(err).Msg("could not enable SO_BROADCAST on outbound socket")
	}

	log.Info().
		Str("receive", recvAddr.String()).
		Str("send", sendAddr.String()).
		Msg("transport ready")

	return &UDP{recvConn: recvConn, sendConn: sendConn}, nil
}

// enableBroadcast sets SO_BROADCAST so events can go to a broadcast address.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Receive blocks until the next datagram arrives or ctx is cancelled.
// Transient socket errors are returned for the caller to log and retry;
// a closed socket or cancelled context ends the loop.
func (t *UDP) Receive(ctx context.Context) ([]byte, error) {
	buf := make([]byte, maxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Deadline so cancellation is noticed without a packet arriving.
		_ = t.recvConn.SetReadDeadline(time.Now().Add(readPollInterval))

		n, _, err := t.recvConn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return nil, err
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		return data, nil
	}
}

// Send broadcasts one datagram on the outbound socket.
func (t *UDP) Send(payload []byte) error {
	if _, err := t.sendConn.Write(payload); err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	return nil
}

// Closed reports whether err means the transport was shut down rather
// than a transient receive failure.
func Closed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled)
}

// Close releases both sockets.
func (t *UDP) Close() error {
	recvErr := t.recvConn.Close()
	sendErr := t.sendConn.Close()
	if recvErr != nil {
		return recvErr
	}
	return sendErr
}

// LocalAddr returns the bound inbound address, useful when binding port 0.
func (t *UDP) LocalAddr() net.Addr {
	return t.recvConn.LocalAddr()
}
