package session

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/abxfeed/internal/protocol/frame"
)

// Conn owns one TCP stream for a single protocol exchange.
type Conn struct {
	conn net.Conn
	addr string
	cfg  Config

	stopCancel func() bool
	closed     atomic.Bool
	closeOnce  sync.Once
	closeErr   error
}

// Addr formats host and port as a dial address.
func Addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Open dials host:port. Cancelling ctx unblocks any pending read or write on the
// returned Conn.
func Open(ctx context.Context, cfg Config, host string, port int) (*Conn, error) {
	addr := Addr(host, port)
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	c := &Conn{conn: raw, addr: addr, cfg: cfg}
	c.stopCancel = context.AfterFunc(ctx, func() {
		_ = raw.SetDeadline(time.Now())
	})
	return c, nil
}

func (c *Conn) RemoteAddr() string {
	return c.addr
}

// Send issues exactly one write; a short write is not retried. Transport
// failures on the write path are reported as *SendError.
func (c *Conn) Send(ctx context.Context, b []byte) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(deadline(ctx, c.cfg.WriteTimeout)); err != nil {
		return &SendError{Want: len(b), Err: err}
	}
	n, err := c.conn.Write(b)
	if err != nil || n != len(b) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &SendError{Wrote: n, Want: len(b), Err: err}
	}
	return nil
}

// ReceiveExactly blocks until n bytes arrive. A peer close before that returns a
// *StreamClosedError matching ErrStreamClosed.
func (c *Conn) ReceiveExactly(ctx context.Context, n int) ([]byte, error) {
	if c.isClosed() {
		return nil, ErrConnClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(deadline(ctx, c.cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	got, err := io.ReadFull(c.conn, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &StreamClosedError{Received: got, Want: n}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return buf, nil
}

func (c *Conn) SendRequest(ctx context.Context, req frame.Request) error {
	b, err := frame.EncodeRequest(req)
	if err != nil {
		return err
	}
	return c.Send(ctx, b)
}

func (c *Conn) ReadRecord(ctx context.Context) (frame.Record, error) {
	b, err := c.ReceiveExactly(ctx, frame.RecordLen)
	if err != nil {
		return frame.Record{}, err
	}
	return frame.DecodeRecord(b)
}

// Close is idempotent and safe on a nil Conn.
func (c *Conn) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.stopCancel != nil {
			c.stopCancel()
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) isClosed() bool {
	return c == nil || c.conn == nil || c.closed.Load()
}

// deadline returns the zero time when neither a timeout nor a ctx deadline applies.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}
