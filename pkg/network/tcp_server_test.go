package network

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"historytree/pkg/client"
	"historytree/pkg/document"
	"historytree/pkg/protocol"
	"historytree/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *TCPServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := document.NewRegistry(&storage.MemoryFactory{Degree: 4}, nil, logger)
	t.Cleanup(func() { reg.Close() })
	return NewTCPServer(reg, logger)
}

// openConn dials addr and completes one request so the server has
// registered the connection.
func openConn(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, protocol.Encode(conn, protocol.OpOpen, nil, nil))
	resp, err := protocol.Decode(conn)
	require.NoError(t, err)
	require.Equal(t, byte(protocol.RespVal), resp.Op)
	return conn
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	srv := newServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return ln.Addr().String()
}

func TestRemoteEditingSession(t *testing.T) {
	addr := startServer(t)
	cli, err := client.Dial(addr)
	require.NoError(t, err)
	defer cli.Close()

	doc, err := cli.Open()
	require.NoError(t, err)
	require.NotEmpty(t, doc)

	a, err := cli.Add(doc, 0, "a")
	require.NoError(t, err)
	b, err := cli.Add(doc, 0, "b")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, []int{a, b})

	a, err = cli.Change(doc, a, "a2")
	require.NoError(t, err)
	assert.Equal(t, 3, a)

	kids, err := cli.Children(doc, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, kids)

	tomb, err := cli.Delete(doc, b)
	require.NoError(t, err)
	assert.Equal(t, 4, tomb)

	tree, err := cli.Tree(doc, 0)
	require.NoError(t, err)
	assert.Equal(t, "root\n|-a2\n", tree)

	cursor, err := cli.Undo(doc)
	require.NoError(t, err)
	assert.Equal(t, 3, cursor)
	kids, err = cli.Children(doc, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, kids)

	text, err := cli.Text(doc, 2)
	require.NoError(t, err)
	assert.Equal(t, "b", text)

	cursor, err = cli.Redo(doc)
	require.NoError(t, err)
	assert.Equal(t, 4, cursor)

	require.NoError(t, cli.CloseDoc(doc))
}

func TestRemoteErrors(t *testing.T) {
	addr := startServer(t)
	cli, err := client.Dial(addr)
	require.NoError(t, err)
	defer cli.Close()

	_, err = cli.Add("missing", 0, "x")
	require.Error(t, err)
	assert.True(t, client.IsRemote(err))
	assert.Contains(t, err.Error(), "not found")

	doc, err := cli.Open()
	require.NoError(t, err)
	_, err = cli.Text(doc, 9)
	assert.True(t, client.IsRemote(err))
	_, err = cli.Change(doc, 0, "root")
	assert.Contains(t, err.Error(), "unknown node")

	// The connection stays usable after a remote error.
	n, err := cli.Add(doc, 0, "ok")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestServeClosesOpenConnectionsOnCancel(t *testing.T) {
	srv := newServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	conn := openConn(t, ln.Addr().String())
	cancel()
	require.NoError(t, waitServe(t, done))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = protocol.Decode(conn)
	assert.ErrorIs(t, err, io.EOF)
}

func TestServeReturnsWhenListenerCloses(t *testing.T) {
	srv := newServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), ln) }()

	conn := openConn(t, ln.Addr().String())
	require.NoError(t, ln.Close())
	assert.ErrorIs(t, waitServe(t, done), net.ErrClosed)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = protocol.Decode(conn)
	assert.ErrorIs(t, err, io.EOF)
}
