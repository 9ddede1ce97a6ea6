package source

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startUDP(t *testing.T) (*UDPSource, *net.UDPConn) {
	t.Helper()
	src := NewUDPSource("127.0.0.1", 0, nil)
	require.NoError(t, src.Listen())
	t.Cleanup(func() { _ = src.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, src.WaitStarted(ctx))

	conn, err := net.DialUDP("udp", nil, src.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return src, conn
}

func TestUDPSource_Receive(t *testing.T) {
	src, conn := startUDP(t)

	_, err := conn.Write(EncodeSamples(nil, testSamples))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Smaller buffer than the datagram: the remainder is served next
	buf := make([]float32, 5)
	n, err := src.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, testSamples[:5], buf[:n])

	n, err = src.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, testSamples[5:], buf[:n])
}

func TestUDPSource_DropsMalformed(t *testing.T) {
	src, conn := startUDP(t)

	_, err := conn.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	_, err = conn.Write(EncodeSamples(nil, testSamples[:2]))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	buf := make([]float32, 8)
	n, err := src.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, testSamples[:2], buf[:n])
	assert.Equal(t, uint64(1), src.Dropped())
}

func TestUDPSource_Cancel(t *testing.T) {
	src, _ := startUDP(t)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := src.Read(ctx, make([]float32, 4))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUDPSource_NotListening(t *testing.T) {
	src := NewUDPSource("127.0.0.1", 0, nil)
	assert.Nil(t, src.Addr())
	_, err := src.Read(context.Background(), make([]float32, 1))
	assert.Error(t, err)
}
