package deleteunwanted

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anacrolix/log"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dechamps/transmission-delete-unwanted/transmission"
)

type PollConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Zero waits indefinitely, or until the context is done.
	StopTimeout   time.Duration
	VerifyTimeout time.Duration
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		StopTimeout:     time.Minute,
		// Verifying a large torrent on slow disks takes a long time.
		VerifyTimeout: 6 * time.Hour,
	}
}

func (pc PollConfig) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = pc.InitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultPollConfig().InitialInterval
	}
	b.MaxInterval = pc.MaxInterval
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultPollConfig().MaxInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Polls the torrent until done accepts its status, backing off between polls. Daemon errors end
// the wait immediately.
func (p *Processor) awaitStatus(
	ctx context.Context,
	id transmission.ID,
	what string,
	timeout time.Duration,
	done func(transmission.Status) bool,
) (t transmission.Torrent, err error) {
	ctx, span := tracer.Start(ctx, "awaitStatus", trace.WithAttributes(
		attribute.String("torrent.id", id.String()),
		attribute.String("await", what),
	))
	defer func() { endSpan(span, err) }()
	polls := 0
	t, err = backoff.Retry(ctx, func() (t transmission.Torrent, err error) {
		polls++
		t, err = p.Daemon.GetTorrent(ctx, id, statusFields)
		if err != nil {
			return t, backoff.Permanent(err)
		}
		if !done(t.Status) {
			err = fmt.Errorf("%w: torrent is %v", errStillWaiting, t.Status)
		}
		return
	},
		backoff.WithBackOff(p.Poll.backOff()),
		backoff.WithMaxElapsedTime(timeout),
	)
	span.SetAttributes(attribute.Int("polls", polls))
	if errors.Is(err, errStillWaiting) {
		err = fmt.Errorf("%w: %v after %v: %v", ErrPollTimeout, what, timeout, err)
	}
	if err == nil {
		logger.WithDefaultLevel(log.Debug).Printf("torrent %v %v after %v polls", id, what, polls)
	}
	return
}

func (p *Processor) awaitStopped(ctx context.Context, id transmission.ID) (transmission.Torrent, error) {
	return p.awaitStatus(ctx, id, "stopping", p.Poll.StopTimeout, func(s transmission.Status) bool {
		return s == transmission.StatusStopped
	})
}

func (p *Processor) awaitVerified(ctx context.Context, id transmission.ID) (transmission.Torrent, error) {
	return p.awaitStatus(ctx, id, "verifying", p.Poll.VerifyTimeout, func(s transmission.Status) bool {
		return !s.IsChecking()
	})
}
