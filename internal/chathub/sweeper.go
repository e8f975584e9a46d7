package chathub

import (
	"context"
	"errors"
	"maps"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const sweepBatch = 500

// SweepConfig holds the timeouts the sweeper enforces.
type SweepConfig struct {
	Interval                time.Duration
	QueueIdleTimeout        time.Duration
	ConversationIdleTimeout time.Duration
	NotifyQueuePosition     bool
}

// SweepReport summarizes one pass.
type SweepReport struct {
	Evicted int `json:"evicted"`
	Ended   int `json:"ended"`
	Paired  int `json:"paired"`
}

// Sweeper evicts idle queued actors, ends abandoned conversations and gives
// every waiting actor another pairing attempt.
type Sweeper struct {
	Matcher *MatcherService
	cfg     SweepConfig

	mu        sync.Mutex
	positions PositionLedger
}

// PositionLedger remembers the queue positions last announced to waiting
// actors. Sweeps that run on different nodes must share one ledger, or each
// node re-announces every position it has not seen itself.
type PositionLedger interface {
	LastPositions(ctx context.Context) (map[string]int, error)
	SavePositions(ctx context.Context, positions map[string]int) error
}

type SweeperOption func(*Sweeper)

func WithPositionLedger(l PositionLedger) SweeperOption {
	return func(s *Sweeper) {
		s.positions = l
	}
}

func NewSweeper(m *MatcherService, cfg SweepConfig, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{Matcher: m, cfg: cfg, positions: &localPositions{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// localPositions is the ledger of a sweeper that only ever runs on this node.
type localPositions struct {
	last map[string]int
}

func (p *localPositions) LastPositions(context.Context) (map[string]int, error) {
	return maps.Clone(p.last), nil
}

func (p *localPositions) SavePositions(_ context.Context, positions map[string]int) error {
	p.last = maps.Clone(positions)
	return nil
}

// Run sweeps every cfg.Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	log.Infof("Sweeper started, interval %s", s.cfg.Interval)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Sweeper stopped")
			return
		case <-ticker.C:
			report, err := s.Sweep(ctx)
			if err != nil {
				log.Errorf("Sweep failed: %v", err)
				continue
			}
			if report != (SweepReport{}) {
				log.Infof("Sweep: evicted %d, ended %d, paired %d", report.Evicted, report.Ended, report.Paired)
			}
		}
	}
}

// Sweep runs one pass. Each step works on whatever the previous one left, and
// an error in one step does not skip the others.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report SweepReport
	var errs []error

	n, err := s.evictIdle(ctx)
	report.Evicted = n
	errs = append(errs, err)

	n, err = s.endAbandoned(ctx)
	report.Ended = n
	errs = append(errs, err)

	n, err = s.repair(ctx)
	report.Paired = n
	errs = append(errs, err)

	if s.cfg.NotifyQueuePosition {
		errs = append(errs, s.notifyPositions(ctx))
	}
	return report, errors.Join(errs...)
}

func (s *Sweeper) evictIdle(ctx context.Context) (int, error) {
	m := s.Matcher
	cutoff := m.now().Add(-s.cfg.QueueIdleTimeout)
	ids, err := m.Store.IdleSince(ctx, models.StateQueued, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, id := range ids {
		err := m.Store.Evict(ctx, id, cutoff)
		switch {
		case err == nil:
			evicted++
			log.Infof("Evicted idle actor %s from the pool", id)
			m.Conversations.notify(ctx, models.Event{Type: models.EventQueueExpired, ActorID: id, At: m.now()})
		case errors.Is(err, storage.ErrNotQueued),
			errors.Is(err, storage.ErrAlreadyInConversation),
			errors.Is(err, storage.ErrActorActive):
			// Changed state since the scan.
		default:
			return evicted, err
		}
	}
	return evicted, nil
}

func (s *Sweeper) endAbandoned(ctx context.Context) (int, error) {
	m := s.Matcher
	cutoff := m.now().Add(-s.cfg.ConversationIdleTimeout)
	ids, err := m.Store.IdleSince(ctx, models.StateMatched, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, id := range ids {
		conv, err := m.Store.ActiveConversation(ctx, id)
		if errors.Is(err, storage.ErrNoActiveConversation) {
			continue
		}
		if err != nil {
			return ended, err
		}

		_, changed, err := m.Conversations.end(ctx, conv.ID, models.EndDisconnectTimeout, id)
		if err != nil {
			return ended, err
		}
		if changed {
			ended++
		}
	}
	return ended, nil
}

// repair gives every waiting actor, oldest first, another pairing attempt.
func (s *Sweeper) repair(ctx context.Context) (int, error) {
	m := s.Matcher
	taken := make(map[string]bool)
	paired := 0

	for x, err := range m.Pool.Entries(ctx) {
		if err != nil {
			return paired, err
		}
		if taken[x.ActorID] {
			continue
		}
		conv, err := m.tryPair(ctx, x)
		if err != nil {
			return paired, err
		}
		if conv != nil {
			paired++
			taken[conv.ActorA] = true
			taken[conv.ActorB] = true
		}
	}
	return paired, nil
}

func (s *Sweeper) notifyPositions(ctx context.Context) error {
	m := s.Matcher
	last, err := s.positions.LastPositions(ctx)
	if err != nil {
		return err
	}
	current := make(map[string]int)
	pos := 0

	for e, err := range m.Pool.Entries(ctx) {
		if err != nil {
			return err
		}
		pos++
		current[e.ActorID] = pos
		if prev, ok := last[e.ActorID]; ok && prev == pos {
			continue
		}
		m.Conversations.notify(ctx, models.Event{
			Type:     models.EventQueuePosition,
			ActorID:  e.ActorID,
			Position: pos,
			At:       m.now(),
		})
	}
	return s.positions.SavePositions(ctx, current)
}
