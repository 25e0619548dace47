package server

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starling/internal/queue"
	"starling/internal/stats"
)

func startTestServer(t *testing.T) (addr string, srv *Server) {
	t.Helper()
	collection, err := queue.NewCollection(t.TempDir(), stats.New())
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv = New(l.Addr().String(), collection, stats.New())
	go srv.Serve(l)
	t.Cleanup(srv.Stop)
	return l.Addr().String(), srv
}

func TestServerRoundtripOverTCP(t *testing.T) {
	addr, _ := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	reader := bufio.NewReader(conn)

	_, err = conn.Write([]byte("set greeting 0 0 5\r\nhello\r\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "STORED\r\n", line)

	_, err = conn.Write([]byte("get greeting\r\n"))
	require.NoError(t, err)

	value, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "VALUE greeting 0 5\r\n", value)
	body, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\r\n", body)
	end, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "END\r\n", end)
}

func TestServerUnknownCommandKeepsConnectionOpen(t *testing.T) {
	addr, _ := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	reader := bufio.NewReader(conn)

	_, err = conn.Write([]byte("frobnicate\r\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "CLIENT_ERROR bad command line format\r\n", line)

	_, err = conn.Write([]byte("quit\r\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "END\r\n", line)
}

func TestServerShutdownClosesListener(t *testing.T) {
	addr, srv := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	_, err = conn.Write([]byte("shutdown\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "END\r\n", line)

	require.Eventually(t, func() bool {
		return srv.isStopped()
	}, time.Second, 10*time.Millisecond)
}
