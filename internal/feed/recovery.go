package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/abxfeed/internal/observability"
	"github.com/danmuck/abxfeed/internal/protocol/frame"
	"github.com/danmuck/abxfeed/internal/protocol/session"
	"golang.org/x/time/rate"
)

var ErrSequenceMismatch = errors.New("feed: resend answered with wrong sequence")

// RecoveryFailure records one sequence that could not be recovered.
type RecoveryFailure struct {
	Sequence int32
	Err      error
}

func (f RecoveryFailure) Error() string {
	return fmt.Sprintf("feed: recovery failed seq=%d: %v", f.Sequence, f.Err)
}

func (f RecoveryFailure) Unwrap() error { return f.Err }

// Report summarizes one gap recovery pass.
type Report struct {
	Requested []int32
	Recovered []int32
	Failures  []RecoveryFailure
}

func (r Report) Complete() bool {
	return len(r.Failures) == 0
}

func (r Report) FailedSequences() []int32 {
	out := make([]int32, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Sequence)
	}
	return out
}

// Fetch runs one resend exchange on a fresh connection.
func (c *Client) Fetch(ctx context.Context, seq int32) (frame.Record, error) {
	req, err := frame.NewResendRequest(seq)
	if err != nil {
		return frame.Record{}, err
	}
	return c.resend(ctx, seq, req)
}

func (c *Client) resend(ctx context.Context, seq int32, req frame.Request) (frame.Record, error) {
	conn, err := session.Open(ctx, c.cfg.Transport, c.cfg.Host, c.cfg.Port)
	if err != nil {
		return frame.Record{}, err
	}
	defer conn.Close()

	if err := conn.SendRequest(ctx, req); err != nil {
		return frame.Record{}, err
	}
	rec, err := conn.ReadRecord(ctx)
	if err != nil {
		return frame.Record{}, err
	}
	if rec.Sequence != seq {
		return frame.Record{}, fmt.Errorf("%w: requested %d got %d", ErrSequenceMismatch, seq, rec.Sequence)
	}
	return rec, nil
}

// Recover fetches every missing sequence in ascending order. Failures are
// collected per sequence and never abort the pass. Sequences the resend byte
// cannot carry fail without waiting on the pacer.
func (c *Client) Recover(ctx context.Context, s *Session) Report {
	missing := s.Missing()
	report := Report{Requested: missing}
	if len(missing) == 0 {
		c.log.Info().Int32("max_seq", s.MaxSequence()).Msg("no missing sequences")
		return report
	}
	c.metrics.RecordGaps(len(missing))
	c.log.Info().Int("missing", len(missing)).Int32("max_seq", s.MaxSequence()).Msg("recovering missing sequences")

	pacer := c.newPacer()
	for i, seq := range missing {
		req, err := frame.NewResendRequest(seq)
		if err != nil {
			report.Failures = append(report.Failures, c.recordFailure(seq, err))
			continue
		}
		if err := pace(ctx, pacer); err != nil {
			for _, rest := range missing[i:] {
				report.Failures = append(report.Failures, c.recordFailure(rest, err))
			}
			break
		}
		c.log.Info().Int32("seq", seq).Msg("requesting missing sequence")
		rec, err := c.resend(ctx, seq, req)
		if err != nil {
			report.Failures = append(report.Failures, c.recordFailure(seq, err))
			continue
		}
		s.Put(rec)
		c.metrics.RecordFrame(observability.PhaseResend)
		c.metrics.RecordResend(true)
		report.Recovered = append(report.Recovered, seq)
	}

	if !report.Complete() {
		c.log.Warn().
			Int("recovered", len(report.Recovered)).
			Interface("failed", report.FailedSequences()).
			Msg("gap recovery incomplete")
	}
	return report
}

func (c *Client) recordFailure(seq int32, err error) RecoveryFailure {
	c.metrics.RecordResend(false)
	c.log.Error().Int32("seq", seq).Err(err).Msg("error requesting sequence")
	return RecoveryFailure{Sequence: seq, Err: err}
}

func (c *Client) newPacer() *rate.Limiter {
	if c.cfg.ResendInterval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(c.cfg.ResendInterval), 1)
}

func pace(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}
