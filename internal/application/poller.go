package application

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/glucoshare/internal/domain/model"
	"github.com/ericfisherdev/glucoshare/internal/domain/port/driven"
)

// ErrNextInFlight is returned when Next is called on a Poller whose previous
// Next call has not returned yet. A Poller supports one driving loop.
var ErrNextInFlight = errors.New("poller: Next already in progress")

// errNoNewReading marks a fetch cycle that returned nothing newer than the
// watermark. It only drives the retry loop and never reaches callers.
var errNoNewReading = errors.New("no new reading yet")

// SessionAcquirer obtains relay sessions. *SessionManager satisfies it.
type SessionAcquirer interface {
	Acquire(ctx context.Context, creds model.Credentials) (model.Session, error)
	Invalidate()
}

// CredentialSource yields the credentials to log in with. *CredentialProvider
// satisfies it.
type CredentialSource interface {
	Get() model.Credentials
}

// Poller turns the relay's batch API into a stream of new readings. It caches
// the session, tracks the watermark (newest reading handed out) and decides
// how long to wait and how far back to look on each poll.
//
// Next must not be called concurrently with itself. ReadNow, WaitHint and the
// other accessors are safe to call while a Next is suspended.
type Poller struct {
	sessions SessionAcquirer
	client   driven.ShareClient
	creds    CredentialSource
	cfg      PollConfig
	metrics  driven.PollMetrics
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time

	mu        sync.Mutex
	session   *model.Session
	watermark *model.Reading
	pending   []model.Reading

	inFlight atomic.Bool
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithClock overrides the poller's time source.
func WithClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		p.now = now
	}
}

// WithTimer overrides how the poller sleeps until the next reading is due.
// Use it together with WithClock.
func WithTimer(after func(time.Duration) <-chan time.Time) PollerOption {
	return func(p *Poller) {
		p.after = after
	}
}

// WithPollMetrics reports fetch outcomes and emitted readings to metrics.
func WithPollMetrics(metrics driven.PollMetrics) PollerOption {
	return func(p *Poller) {
		p.metrics = metrics
	}
}

// NewPoller creates a Poller. It returns an error if cfg is invalid.
func NewPoller(
	sessions SessionAcquirer,
	client driven.ShareClient,
	creds CredentialSource,
	cfg PollConfig,
	opts ...PollerOption,
) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid poll config: %w", err)
	}

	p := &Poller{
		sessions: sessions,
		client:   client,
		creds:    creds,
		cfg:      cfg,
		metrics:  NoopMetrics(),
		now:      time.Now,
		after:    time.After,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Next blocks until a reading newer than the watermark is available and
// returns it. Readings left over from an earlier batch are returned first
// without any I/O. Otherwise Next sleeps until the next reading is due, then
// polls with retry until the relay has something new or the attempt ceiling
// is reached (driven.ErrRetriesExhausted). Both the sleep and the backoff
// between attempts end early when ctx is canceled.
func (p *Poller) Next(ctx context.Context) (model.Reading, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return model.Reading{}, ErrNextInFlight
	}
	defer p.inFlight.Store(false)

	for {
		if r, ok := p.emitPending(); ok {
			return r, nil
		}

		if err := p.waitForNextReading(ctx); err != nil {
			return model.Reading{}, err
		}

		fresh, err := p.fetchWithRetry(ctx)
		if err != nil {
			return model.Reading{}, err
		}

		p.mu.Lock()
		p.pending = fresh
		p.mu.Unlock()
	}
}

// Readings returns an iterator over Next. Iteration ends after the first
// error, which is yielded with a zero Reading.
func (p *Poller) Readings(ctx context.Context) iter.Seq2[model.Reading, error] {
	return func(yield func(model.Reading, error) bool) {
		for {
			r, err := p.Next(ctx)
			if err != nil {
				yield(model.Reading{}, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// ReadNow performs a single fetch with no wait and no retry beyond the
// session manager's own. Zero fields in opts fall back to the configured
// defaults. Readings not newer than the watermark are dropped, and the
// watermark moves to the newest reading in the batch.
func (p *Poller) ReadNow(ctx context.Context, opts model.FetchOptions) ([]model.Reading, error) {
	if opts.Minutes <= 0 {
		opts.Minutes = p.cfg.ReadNowDefaults.Minutes
	}
	if opts.MaxCount <= 0 {
		opts.MaxCount = p.cfg.ReadNowDefaults.MaxCount
	}
	opts = opts.WithDefaults()

	readings, err := p.fetch(ctx, opts)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fresh := newerThan(readings, p.watermark)
	if len(fresh) == 0 {
		p.metrics.ObserveFetch(driven.OutcomeEmpty)
		return fresh, nil
	}

	p.metrics.ObserveFetch(driven.OutcomeSuccess)
	p.advanceLocked(fresh[len(fresh)-1])
	return fresh, nil
}

// WaitHint returns how long until the next poll is due. It is zero when no
// reading has been seen yet or the next reading is already overdue.
func (p *Poller) WaitHint() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watermark == nil {
		return 0
	}
	return waitFor(p.watermark.Timestamp, p.now(), p.cfg)
}

// NextPollAt returns when the next reading is expected. ok is false until a
// watermark exists.
func (p *Poller) NextPollAt() (at time.Time, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watermark == nil {
		return time.Time{}, false
	}
	return nextPollAt(p.watermark.Timestamp, p.cfg), true
}

// Watermark returns the newest reading handed out so far.
func (p *Poller) Watermark() (model.Reading, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watermark == nil {
		return model.Reading{}, false
	}
	return *p.watermark, true
}

// InvalidateSession drops the cached session so the next fetch logs in
// again, e.g. after the credentials were replaced.
func (p *Poller) InvalidateSession() {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()

	p.sessions.Invalidate()
}

// emitPending pops the oldest queued reading that is still newer than the
// watermark and makes it the new watermark.
func (p *Poller) emitPending() (model.Reading, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pending) > 0 {
		r := p.pending[0]
		p.pending = p.pending[1:]

		// ReadNow may have moved the watermark past queued readings.
		if p.watermark != nil && !r.After(*p.watermark) {
			continue
		}

		p.advanceLocked(r)
		p.metrics.AddReadingsEmitted(1)
		return r, true
	}

	p.pending = nil
	return model.Reading{}, false
}

// advanceLocked moves the watermark forward to r. It never moves it back.
// p.mu must be held.
func (p *Poller) advanceLocked(r model.Reading) {
	if p.watermark != nil && !r.After(*p.watermark) {
		return
	}
	wm := r
	p.watermark = &wm
	p.metrics.SetWatermark(r.Timestamp)
}

// waitForNextReading sleeps until the reading after the watermark is due.
func (p *Poller) waitForNextReading(ctx context.Context) error {
	d := p.WaitHint()
	if d <= 0 {
		return nil
	}

	slog.Debug("waiting for next reading", "wait", d.Round(time.Second))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.after(d):
		return nil
	}
}

// fetchWithRetry runs fetch cycles with exponential backoff until one yields
// readings newer than the watermark.
func (p *Poller) fetchWithRetry(ctx context.Context) ([]model.Reading, error) {
	attempts := 0
	var lastFailure error

	cycle := func() ([]model.Reading, error) {
		attempts++
		fresh, err := p.fetchCycle(ctx)
		if err != nil && !errors.Is(err, errNoNewReading) {
			lastFailure = err
		}
		return fresh, err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.fetchBackOff(), uint64(p.cfg.MaxAttempts-1)), ctx)
	fresh, err := backoff.RetryNotifyWithData(cycle, b, func(err error, next time.Duration) {
		if errors.Is(err, errNoNewReading) {
			slog.Debug("no new reading yet", "attempt", attempts, "retry_in", next.Round(time.Millisecond))
			return
		}
		slog.Warn("fetch cycle failed, retrying",
			"attempt", attempts,
			"retry_in", next.Round(time.Millisecond),
			"error", err,
		)
	})
	if err == nil {
		return fresh, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if lastFailure == nil {
		return nil, fmt.Errorf("%w: no new reading after %d fetch attempts", driven.ErrRetriesExhausted, attempts)
	}
	return nil, fmt.Errorf("%w: %d fetch attempts, last failure: %w", driven.ErrRetriesExhausted, attempts, lastFailure)
}

// fetchCycle performs one poll sized from the watermark and keeps only the
// readings newer than it.
func (p *Poller) fetchCycle(ctx context.Context) ([]model.Reading, error) {
	p.mu.Lock()
	opts := firstPollWindow(p.cfg)
	if p.watermark != nil {
		opts = catchUpWindow(p.watermark.Timestamp, p.now(), p.cfg)
	}
	p.mu.Unlock()

	readings, err := p.fetch(ctx, opts)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	fresh := newerThan(readings, p.watermark)
	p.mu.Unlock()

	if len(fresh) == 0 {
		p.metrics.ObserveFetch(driven.OutcomeEmpty)
		return nil, errNoNewReading
	}

	p.metrics.ObserveFetch(driven.OutcomeSuccess)
	slog.Debug("fetch cycle found new readings",
		"minutes", opts.Minutes,
		"max_count", opts.MaxCount,
		"fetched", len(readings),
		"new", len(fresh),
	)
	return fresh, nil
}

// fetch reads from the relay with the cached session, logging in first if
// there is none. Any fetch failure drops the session, since an expired
// session is the usual cause.
func (p *Poller) fetch(ctx context.Context, opts model.FetchOptions) ([]model.Reading, error) {
	session, err := p.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	readings, err := p.client.ReadLatest(ctx, session.Token, opts)
	if err != nil {
		if ctx.Err() == nil {
			p.dropSession(session)
			p.metrics.ObserveFetch(driven.OutcomeFailure)
		}
		return nil, err
	}
	return readings, nil
}

// ensureSession returns the cached session or acquires a new one.
func (p *Poller) ensureSession(ctx context.Context) (model.Session, error) {
	p.mu.Lock()
	if p.session != nil {
		s := *p.session
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	session, err := p.sessions.Acquire(ctx, p.creds.Get())
	if err != nil {
		return model.Session{}, fmt.Errorf("acquiring session: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		// Another flow logged in meanwhile; keep a single session.
		return *p.session, nil
	}
	p.session = &session
	return session, nil
}

// dropSession forgets stale if it is still the cached session.
func (p *Poller) dropSession(stale model.Session) {
	p.mu.Lock()
	if p.session != nil && p.session.Token == stale.Token {
		p.session = nil
	}
	p.mu.Unlock()

	p.sessions.Invalidate()
}

// fetchBackOff builds the delay schedule between fetch cycles.
func (p *Poller) fetchBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryMinBackoff
	b.MaxInterval = p.cfg.RetryMaxBackoff
	b.MaxElapsedTime = 0
	// No jitter: RetryMinBackoff and RetryMaxBackoff are hard bounds.
	b.RandomizationFactor = 0
	b.Reset()
	return b
}
