package client

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"historytree/pkg/protocol"
)

// RemoteError is an error reported by the server.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return "remote: " + e.Msg }

type Client struct {
	mu   sync.Mutex
	conn net.Conn
	addr string
}

func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn: conn,
		addr: addr,
	}, nil
}

// Open creates a document on the server and returns its id.
func (c *Client) Open() (string, error) {
	pkg, err := c.call(protocol.OpOpen, "", nil)
	if err != nil {
		return "", err
	}
	return string(pkg.Value), nil
}

func (c *Client) CloseDoc(doc string) error {
	_, err := c.call(protocol.OpClose, doc, nil)
	return err
}

func (c *Client) Add(doc string, parent int, text string) (int, error) {
	return c.callIndex(protocol.OpAdd, doc, parent, text)
}

func (c *Client) Change(doc string, node int, text string) (int, error) {
	return c.callIndex(protocol.OpChange, doc, node, text)
}

func (c *Client) Delete(doc string, node int) (int, error) {
	return c.callIndex(protocol.OpDelete, doc, node, "")
}

// Undo returns the cursor after the move.
func (c *Client) Undo(doc string) (int, error) {
	return c.callIndex(protocol.OpUndo, doc, 0, "")
}

// Redo returns the cursor after the move.
func (c *Client) Redo(doc string) (int, error) {
	return c.callIndex(protocol.OpRedo, doc, 0, "")
}

func (c *Client) Children(doc string, parent int) ([]int, error) {
	pkg, err := c.call(protocol.OpChildren, doc, protocol.PutIndex(parent, ""))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeIndices(pkg.Value)
}

func (c *Client) Text(doc string, node int) (string, error) {
	pkg, err := c.call(protocol.OpText, doc, protocol.PutIndex(node, ""))
	if err != nil {
		return "", err
	}
	return string(pkg.Value), nil
}

// Tree returns the rendered subtree below node.
func (c *Client) Tree(doc string, node int) (string, error) {
	pkg, err := c.call(protocol.OpTree, doc, protocol.PutIndex(node, ""))
	if err != nil {
		return "", err
	}
	return string(pkg.Value), nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) callIndex(op byte, doc string, idx int, text string) (int, error) {
	var val []byte
	if op != protocol.OpUndo && op != protocol.OpRedo {
		val = protocol.PutIndex(idx, text)
	}
	pkg, err := c.call(op, doc, val)
	if err != nil {
		return 0, err
	}
	n, _, err := protocol.ReadIndex(pkg.Value)
	return n, err
}

func (c *Client) call(op byte, doc string, val []byte) (*protocol.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := protocol.Encode(c.conn, op, []byte(doc), val); err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			return nil, err
		}
		if err := c.reconnect(); err != nil {
			return nil, err
		}
		// Re-send
		if err := protocol.Encode(c.conn, op, []byte(doc), val); err != nil {
			return nil, err
		}
	}

	pkg, err := protocol.Decode(c.conn)
	if err != nil {
		return nil, err
	}
	switch pkg.Op {
	case protocol.RespOK, protocol.RespVal:
		return pkg, nil
	case protocol.RespErr:
		return nil, &RemoteError{Msg: string(pkg.Value)}
	default:
		return nil, fmt.Errorf("unknown response 0x%02x", pkg.Op)
	}
}

func (c *Client) reconnect() error {
	c.conn.Close()
	conn, err := net.DialTimeout("tcp", c.addr, 5*time.Second)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// IsRemote reports whether err came from the server.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
