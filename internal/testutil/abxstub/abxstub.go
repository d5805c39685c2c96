// Package abxstub runs an in-process ABX server for tests.
package abxstub

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/abxfeed/internal/protocol/frame"
)

// Options configures what the stub answers.
type Options struct {
	// Stream is written in order for a stream-all request, then the stub closes.
	Stream []frame.Record
	// Resend maps a requested sequence to the record sent back. Missing keys are
	// answered by closing the connection without a frame.
	Resend map[int32]frame.Record
	// ChunkSize splits every write into pieces of this many bytes. Zero writes whole frames.
	ChunkSize int
	// Trailer is raw bytes written after Stream, e.g. a truncated frame.
	Trailer []byte
}

type Server struct {
	t    testing.TB
	ln   net.Listener
	opts Options

	mu       sync.Mutex
	requests []frame.Request

	wg sync.WaitGroup
}

func Start(t testing.TB, opts Options) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("abxstub listen: %v", err)
	}
	s := &Server{t: t, ln: ln, opts: opts}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Host() string {
	return s.ln.Addr().(*net.TCPAddr).IP.String()
}

func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Requests returns every decoded request in arrival order.
func (s *Server) Requests() []frame.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// ResendSeqs returns the sequences of resend requests in arrival order.
func (s *Server) ResendSeqs() []int32 {
	out := []int32{}
	for _, req := range s.Requests() {
		if req.CallType == frame.CallResend {
			out = append(out, int32(req.ResendSeq))
		}
	}
	return out
}

func (s *Server) Close() {
	_ = s.ln.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.t.Logf("abxstub accept: %v", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.serve(conn)
		}()
	}
}

func (s *Server) serve(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	req, err := frame.ReadRequest(conn)
	if err != nil {
		s.t.Logf("abxstub read request: %v", err)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	switch req.CallType {
	case frame.CallStreamAll:
		for _, rec := range s.opts.Stream {
			if err := s.writeRecord(conn, rec); err != nil {
				s.t.Logf("abxstub write record seq=%d: %v", rec.Sequence, err)
				return
			}
		}
		if len(s.opts.Trailer) > 0 {
			_ = s.write(conn, s.opts.Trailer)
		}
	case frame.CallResend:
		rec, ok := s.opts.Resend[int32(req.ResendSeq)]
		if !ok {
			return
		}
		if err := s.writeRecord(conn, rec); err != nil {
			s.t.Logf("abxstub write resend seq=%d: %v", req.ResendSeq, err)
			return
		}
		// the client closes a resend exchange
		_, _ = io.Copy(io.Discard, conn)
	}
}

func (s *Server) writeRecord(conn net.Conn, rec frame.Record) error {
	b, err := frame.EncodeRecord(rec)
	if err != nil {
		return err
	}
	return s.write(conn, b)
}

func (s *Server) write(conn net.Conn, b []byte) error {
	chunk := s.opts.ChunkSize
	if chunk <= 0 {
		_, err := conn.Write(b)
		return err
	}
	for len(b) > 0 {
		n := min(chunk, len(b))
		if _, err := conn.Write(b[:n]); err != nil {
			return err
		}
		b = b[n:]
		time.Sleep(time.Millisecond)
	}
	return nil
}

// Rec builds a fixture record.
func Rec(symbol string, side byte, qty, price, seq int32) frame.Record {
	return frame.Record{Symbol: symbol, Side: side, Quantity: qty, Price: price, Sequence: seq}
}
