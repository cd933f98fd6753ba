package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openPair binds a receiver on an ephemeral port and a sender aimed at it.
func openPair(t *testing.T) (recv *UDP, send *UDP) {
	t.Helper()

	recv, err := Open(Config{
		ReceivePort:   0,
		BindAddr:      "127.0.0.1",
		SendPort:      9, // unused by the receiving side
		BroadcastAddr: "127.0.0.1",
	})
	require.NoError(t, err)
	t.Cleanup(func() { recv.Close() })

	port := recv.LocalAddr().(*net.UDPAddr).Port
	send, err = Open(Config{
		ReceivePort:   0,
		BindAddr:      "127.0.0.1",
		SendPort:      port,
		BroadcastAddr: "127.0.0.1",
	})
	require.NoError(t, err)
	t.Cleanup(func() { send.Close() })

	return recv, send
}

func TestSendReceive(t *testing.T) {
	recv, send := openPair(t)

	payload := []byte(`{"id": 1, "measurement[A]": 6}`)
	require.NoError(t, send.Send(payload))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := recv.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReceiveCancellation(t *testing.T) {
	recv, _ := openPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := recv.Receive(ctx)
	require.Error(t, err)
	assert.True(t, Closed(err))
}

func TestReceiveAfterClose(t *testing.T) {
	recv, _ := openPair(t)
	require.NoError(t, recv.Close())

	_, err := recv.Receive(context.Background())
	require.Error(t, err)
	assert.True(t, Closed(err))
}

func TestOpenBindFailure(t *testing.T) {
	first, err := Open(Config{
		ReceivePort:   0,
		BindAddr:      "127.0.0.1",
		SendPort:      9,
		BroadcastAddr: "127.0.0.1",
	})
	require.NoError(t, err)
	defer first.Close()

	// Binding the same port again must fail loudly, not degrade silently.
	port := first.LocalAddr().(*net.UDPAddr).Port
	_, err = Open(Config{
		ReceivePort:   port,
		BindAddr:      "127.0.0.1",
		SendPort:      9,
		BroadcastAddr: "127.0.0.1",
	})
	assert.Error(t, err)
}
