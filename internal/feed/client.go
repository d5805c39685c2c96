package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/abxfeed/internal/observability"
	"github.com/danmuck/abxfeed/internal/protocol/frame"
	"github.com/danmuck/abxfeed/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client runs ABX exchanges against one configured endpoint. Calls are
// synchronous and must not overlap.
type Client struct {
	cfg     Config
	log     zerolog.Logger
	metrics *observability.Metrics
	rng     *rand.Rand
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg: cfg,
		log: log.Logger,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Result is the outcome of a completed run.
type Result struct {
	RunID    string
	Session  *Session
	Records  []frame.Record
	Report   Report
	Duration time.Duration
}

// Run ingests the full stream and then recovers gaps. An error means the bulk
// stream failed and no recovery was attempted.
func (c *Client) Run(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	rc := *c
	rc.log = c.log.With().Str("run_id", runID).Logger()

	start := time.Now()
	s := NewSession()
	if err := rc.Ingest(ctx, s); err != nil {
		c.metrics.ObserveRun(time.Since(start), false)
		return Result{}, err
	}
	report := rc.Recover(ctx, s)
	res := Result{
		RunID:    runID,
		Session:  s,
		Records:  s.Snapshot(),
		Report:   report,
		Duration: time.Since(start),
	}
	c.metrics.ObserveRun(res.Duration, true)
	rc.log.Info().
		Int("records", len(res.Records)).
		Int("failed", len(report.Failures)).
		Dur("duration", res.Duration).
		Msg("run complete")
	return res, nil
}

// Ingest runs the stream-all exchange into s until the peer closes the stream.
func (c *Client) Ingest(ctx context.Context, s *Session) error {
	conn, err := c.openStream(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.log.Info().Str("addr", conn.RemoteAddr()).Msg("requesting all packets")
	if err := conn.SendRequest(ctx, frame.NewStreamAllRequest()); err != nil {
		return fmt.Errorf("feed: stream-all request: %w", err)
	}

	received := 0
	for {
		rec, err := conn.ReadRecord(ctx)
		if err != nil {
			var closed *session.StreamClosedError
			if !errors.As(err, &closed) {
				return fmt.Errorf("feed: stream-all read after %d records: %w", received, err)
			}
			if closed.Received > 0 {
				c.log.Warn().
					Int("received", closed.Received).
					Int("want", closed.Want).
					Msg("stream closed mid-frame; partial frame dropped")
			}
			break
		}
		received++
		c.metrics.RecordFrame(observability.PhaseStream)
		if s.Put(rec) {
			c.metrics.RecordDuplicate()
			c.log.Debug().Int32("seq", rec.Sequence).Msg("duplicate sequence overwritten")
		}
	}

	c.log.Info().
		Int("frames", received).
		Int("records", s.Len()).
		Int32("max_seq", s.MaxSequence()).
		Msg("stream closed by server")
	return nil
}

func (c *Client) openStream(ctx context.Context) (*session.Conn, error) {
	attempt := 0
	for {
		attempt++
		c.log.Info().Str("host", c.cfg.Host).Int("port", c.cfg.Port).Int("attempt", attempt).Msg("connecting")
		conn, err := session.Open(ctx, c.cfg.Transport, c.cfg.Host, c.cfg.Port)
		if err == nil {
			return conn, nil
		}
		if attempt >= c.cfg.MaxConnectAttempts {
			return nil, err
		}
		c.log.Warn().Int("attempt", attempt).Err(err).Msg("connect failed; retrying")
		if err := session.SleepBackoff(ctx, c.cfg.Transport.Backoff, attempt, c.rng); err != nil {
			return nil, err
		}
	}
}
