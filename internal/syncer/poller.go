package syncer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Poller runs incremental updates on a fixed cadence, standing in for the
// webhook push the upstream does not offer. Upstream failures back off
// exponentially instead of hammering a struggling API on every tick.
type Poller struct {
	syncer   *Syncer
	interval time.Duration
	log      zerolog.Logger

	watermark string
}

// NewPoller constructs a Poller; interval <= 0 disables Run.
func NewPoller(s *Syncer, interval time.Duration, log zerolog.Logger) *Poller {
	return &Poller{syncer: s, interval: interval, log: log}
}

// Run polls until ctx is canceled. The watermark advances to the newest
// activity timestamp seen, so each poll only reports genuinely new changes.
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 {
		p.log.Info().Msg("incremental poller disabled")
		return
	}
	p.log.Info().Dur("interval", p.interval).Msg("incremental poller starting")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.interval
	bo.MaxInterval = 10 * p.interval
	bo.MaxElapsedTime = 0
	bo.Reset()

	wait := p.interval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("incremental poller stopped")
			return
		case <-timer.C:
		}

		changed, err := p.syncer.IncrementalUpdate(ctx, p.watermark)
		if err != nil {
			wait = bo.NextBackOff()
			p.log.Warn().Err(err).Dur("retry_in", wait).Msg("poll failed")
		} else {
			bo.Reset()
			wait = p.interval
			for _, c := range changed {
				if c.UpdatedAt > p.watermark {
					p.watermark = c.UpdatedAt
				}
			}
		}
		timer.Reset(wait)
	}
}
