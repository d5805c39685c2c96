package session

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/danmuck/abxfeed/internal/protocol/frame"
	"github.com/danmuck/abxfeed/internal/testutil/abxstub"
	"github.com/danmuck/abxfeed/internal/testutil/testlog"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = time.Second
	return cfg
}

func TestRequestRoundTripThroughStub(t *testing.T) {
	testlog.Start(t)
	stub := abxstub.Start(t, abxstub.Options{})
	ctx := context.Background()

	want, err := frame.NewResendRequest(200)
	if err != nil {
		t.Fatalf("new resend: %v", err)
	}
	conn, err := Open(ctx, testConfig(), stub.Host(), stub.Port())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := conn.SendRequest(ctx, want); err != nil {
		t.Fatalf("send request: %v", err)
	}
	if _, err := conn.ReadRecord(ctx); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed for unanswered resend, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	stub.Close()

	got := stub.Requests()
	if len(got) != 1 || got[0] != want {
		t.Fatalf("stub decoded %+v want %+v", got, want)
	}
}

func TestReceiveExactlyAssemblesChunkedFramesUntilClose(t *testing.T) {
	testlog.Start(t)
	stream := []frame.Record{
		abxstub.Rec("MSFT", 'B', 50, 100, 1),
		abxstub.Rec("AAPL", 'S', 30, -7, 2),
	}
	stub := abxstub.Start(t, abxstub.Options{Stream: stream, ChunkSize: 3})
	ctx := context.Background()

	conn, err := Open(ctx, testConfig(), stub.Host(), stub.Port())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := conn.SendRequest(ctx, frame.NewStreamAllRequest()); err != nil {
		t.Fatalf("send: %v", err)
	}
	for i, want := range stream {
		got, err := conn.ReadRecord(ctx)
		if err != nil {
			t.Fatalf("read record %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("record %d mismatch: got=%+v want=%+v", i, got, want)
		}
	}
	_, err = conn.ReceiveExactly(ctx, frame.RecordLen)
	var closed *StreamClosedError
	if !errors.As(err, &closed) || closed.Received != 0 {
		t.Fatalf("expected clean StreamClosedError, got %v", err)
	}
}

func TestReceiveExactlyReportsPartialFrameOnClose(t *testing.T) {
	testlog.Start(t)
	stub := abxstub.Start(t, abxstub.Options{Trailer: []byte{'M', 'S', 'F'}})
	ctx := context.Background()

	conn, err := Open(ctx, testConfig(), stub.Host(), stub.Port())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := conn.SendRequest(ctx, frame.NewStreamAllRequest()); err != nil {
		t.Fatalf("send: %v", err)
	}
	_, err = conn.ReceiveExactly(ctx, frame.RecordLen)
	var closed *StreamClosedError
	if !errors.As(err, &closed) {
		t.Fatalf("expected StreamClosedError, got %v", err)
	}
	if closed.Received != 3 || closed.Want != frame.RecordLen {
		t.Fatalf("unexpected partial counts: %+v", closed)
	}
}

func TestOpenConnectError(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	_, err = Open(context.Background(), testConfig(), "127.0.0.1", port)
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	var connectErr *ConnectError
	if !errors.As(err, &connectErr) || connectErr.Addr == "" {
		t.Fatalf("expected ConnectError with addr, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	testlog.Start(t)
	stub := abxstub.Start(t, abxstub.Options{})
	conn, err := Open(context.Background(), testConfig(), stub.Host(), stub.Port())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	var nilConn *Conn
	if err := nilConn.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
	if err := nilConn.Send(context.Background(), []byte{1, 0}); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}

func TestSendAndReceiveAfterCloseReturnConnClosed(t *testing.T) {
	testlog.Start(t)
	stub := abxstub.Start(t, abxstub.Options{})
	ctx := context.Background()
	conn, err := Open(ctx, testConfig(), stub.Host(), stub.Port())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := conn.Send(ctx, []byte{1, 0}); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("send after close: expected ErrConnClosed, got %v", err)
	}
	if _, err := conn.ReceiveExactly(ctx, frame.RecordLen); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("receive after close: expected ErrConnClosed, got %v", err)
	}
}

// scriptedConn fails the write path on demand.
type scriptedConn struct {
	net.Conn
	wrote       int
	writeErr    error
	deadlineErr error
}

func (c *scriptedConn) Write(b []byte) (int, error) { return c.wrote, c.writeErr }
func (c *scriptedConn) SetWriteDeadline(time.Time) error { return c.deadlineErr }
func (c *scriptedConn) Close() error { return nil }

func TestSendWrapsWriteFailures(t *testing.T) {
	testlog.Start(t)
	errBroken := errors.New("broken pipe")
	cases := []struct {
		name  string
		conn  *scriptedConn
		wrote int
	}{
		{name: "write error", conn: &scriptedConn{wrote: 1, writeErr: errBroken}, wrote: 1},
		{name: "short write", conn: &scriptedConn{wrote: 1}, wrote: 1},
		{name: "deadline error", conn: &scriptedConn{deadlineErr: errBroken}, wrote: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Conn{conn: tc.conn, cfg: testConfig()}
			err := c.Send(context.Background(), []byte{1, 0})
			if !errors.Is(err, ErrSend) {
				t.Fatalf("expected ErrSend, got %v", err)
			}
			var sendErr *SendError
			if !errors.As(err, &sendErr) {
				t.Fatalf("expected *SendError, got %T", err)
			}
			if sendErr.Wrote != tc.wrote || sendErr.Want != 2 {
				t.Fatalf("unexpected counts: %+v", sendErr)
			}
			if tc.conn.writeErr != nil || tc.conn.deadlineErr != nil {
				if !errors.Is(err, errBroken) {
					t.Fatalf("expected cause preserved, got %v", err)
				}
			}
		})
	}
}

func TestReceiveExactlyHonorsReadTimeout(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		time.Sleep(500 * time.Millisecond)
	}()

	cfg := testConfig()
	cfg.ReadTimeout = 50 * time.Millisecond
	addr := ln.Addr().(*net.TCPAddr)
	conn, err := Open(context.Background(), cfg, "127.0.0.1", addr.Port)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	_, err = conn.ReceiveExactly(context.Background(), frame.RecordLen)
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected timeout, got %v", err)
	}
	if errors.Is(err, ErrStreamClosed) {
		t.Fatalf("timeout must not look like stream close")
	}
	<-done
}

func TestReceiveExactlyStopsOnContextCancel(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	release := make(chan struct{})
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		<-release
	}()
	defer close(release)

	cfg := testConfig()
	cfg.ReadTimeout = 0
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := Open(ctx, cfg, "127.0.0.1", ln.Addr().(*net.TCPAddr).Port)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	time.AfterFunc(30*time.Millisecond, cancel)
	_, err = conn.ReceiveExactly(ctx, frame.RecordLen)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
	cfg.Jitter = true
	got := NextBackoffDelay(cfg, 2, rand.New(rand.NewSource(1)))
	if got < 250*time.Millisecond || got > 750*time.Millisecond {
		t.Fatalf("jittered attempt2 out of range: %v", got)
	}
}

func TestSleepBackoffCancelled(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SleepBackoff(ctx, BackoffConfig{InitialDelay: time.Second}, 1, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	testlog.Start(t)
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.ReadTimeout = -time.Second
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
