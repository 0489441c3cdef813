package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"historytree/pkg/document"
	"historytree/pkg/protocol"
)

type TCPServer struct {
	registry *document.Registry
	log      *slog.Logger
	wg       sync.WaitGroup
}

func NewTCPServer(registry *document.Registry, logger *slog.Logger) *TCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPServer{registry: registry, log: logger.With("component", "tcp")}
}

// Start listens on addr and serves until ctx is cancelled.
func (s *TCPServer) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled or the
// listener is closed, then closes open connections and waits for their
// handlers to finish.
func (s *TCPServer) Serve(ctx context.Context, listener net.Listener) error {
	s.log.Info("listening", "addr", listener.Addr().String())

	var (
		mu     sync.Mutex
		closed bool
		conns  = map[net.Conn]struct{}{}
	)
	shutdown := func() {
		mu.Lock()
		defer mu.Unlock()
		closed = true
		for c := range conns {
			c.Close()
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
			shutdown()
		case <-stop:
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				shutdown()
				s.wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				shutdown()
				s.wg.Wait()
				return err
			}
			s.log.Warn("accept failed", "err", err)
			continue
		}

		mu.Lock()
		if closed {
			mu.Unlock()
			conn.Close()
			continue
		}
		conns[conn] = struct{}{}
		s.wg.Add(1)
		mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
			mu.Lock()
			delete(conns, conn)
			mu.Unlock()
		}()
	}
}

func (s *TCPServer) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		req, err := protocol.Decode(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("decode failed", "remote", conn.RemoteAddr().String(), "err", err)
			}
			return
		}

		op, val, err := s.dispatch(req)
		if err != nil {
			op, val = protocol.RespErr, []byte(err.Error())
		}
		if err := protocol.Encode(conn, op, nil, val); err != nil {
			s.log.Debug("write failed", "remote", conn.RemoteAddr().String(), "err", err)
			return
		}
	}
}

func (s *TCPServer) dispatch(req *protocol.Packet) (byte, []byte, error) {
	id := string(req.Key)

	switch req.Op {
	case protocol.OpOpen:
		id, err := s.registry.Create()
		if err != nil {
			return 0, nil, err
		}
		return protocol.RespVal, []byte(id), nil

	case protocol.OpClose:
		return protocol.RespOK, nil, s.registry.Remove(id)

	case protocol.OpUndo, protocol.OpRedo:
		var cursor int
		err := s.registry.With(id, func(d *document.Document) error {
			if req.Op == protocol.OpUndo {
				d.Undo()
			} else {
				d.Redo()
			}
			cursor = d.Cursor()
			return nil
		})
		return protocol.RespVal, protocol.PutIndex(cursor, ""), err
	}

	idx, text, err := protocol.ReadIndex(req.Value)
	if err != nil {
		return 0, nil, err
	}

	var out []byte
	err = s.registry.With(id, func(d *document.Document) error {
		switch req.Op {
		case protocol.OpAdd:
			n, err := d.Add(text, idx)
			out = protocol.PutIndex(n, "")
			return err
		case protocol.OpChange:
			n, err := d.Change(text, idx)
			out = protocol.PutIndex(n, "")
			return err
		case protocol.OpDelete:
			n, err := d.Delete(idx)
			out = protocol.PutIndex(n, "")
			return err
		case protocol.OpChildren:
			out = protocol.EncodeIndices(d.Children(idx))
			return nil
		case protocol.OpText:
			t, ok := d.Text(idx)
			if !ok {
				return fmt.Errorf("%w: %d", document.ErrUnknownNode, idx)
			}
			out = []byte(t)
			return nil
		case protocol.OpTree:
			var buf bytes.Buffer
			if err := d.Print(&buf, idx); err != nil {
				return err
			}
			out = buf.Bytes()
			return nil
		default:
			return fmt.Errorf("unknown op 0x%02x", req.Op)
		}
	})
	if err != nil {
		return 0, nil, err
	}
	return protocol.RespVal, out, nil
}
