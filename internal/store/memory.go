package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/victornm/wordroyale/internal/domain"
)

type roundKey struct {
	gameID string
	number int
}

type resultKey struct {
	playerResultID string
	round          int
}

// Memory keeps records in process. It backs tests and the "memory" store driver.
type Memory struct {
	mu       sync.Mutex
	games    map[string]domain.Game
	rounds   map[roundKey]domain.Round
	players  map[string]domain.PlayerResult
	joined   []string
	results  map[resultKey]domain.RoundResult
	attempts []domain.SubmissionAttempt
	seq      int64
	queue    []domain.QueueEntry
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		games:   make(map[string]domain.Game),
		rounds:  make(map[roundKey]domain.Round),
		players: make(map[string]domain.PlayerResult),
		results: make(map[resultKey]domain.RoundResult),
	}
}

func (m *Memory) CreateGame(_ context.Context, g NewGame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.games[g.Game.ID]; ok {
		return fmt.Errorf("memory: game %s already exists", g.Game.ID)
	}

	for _, id := range g.QueueEntryIDs {
		if i := m.queueIndex(id); i < 0 || m.queue[i].GameID != nil {
			return fmt.Errorf("memory: queue entry %s is not waiting", id)
		}
	}

	m.games[g.Game.ID] = g.Game
	for _, r := range g.Rounds {
		r.GameID = g.Game.ID
		m.rounds[roundKey{g.Game.ID, r.Number}] = r
	}

	for _, p := range g.Players {
		p.GameID = g.Game.ID
		for _, rr := range p.RoundResults {
			rr.PlayerResultID = p.ID
			m.results[resultKey{p.ID, rr.RoundNumber}] = rr
		}
		p.RoundResults = nil
		m.players[p.ID] = p
		m.joined = append(m.joined, p.ID)
	}

	gameID := g.Game.ID
	for _, id := range g.QueueEntryIDs {
		m.queue[m.queueIndex(id)].GameID = &gameID
	}

	return nil
}

func (m *Memory) GetGame(_ context.Context, id string) (*domain.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.games[id]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}

	return &g, nil
}

func (m *Memory) ListGames(_ context.Context, f GameFilter) ([]domain.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Game
	for _, g := range m.games {
		if (f.Status == "" || g.Status == f.Status) && (f.Mode == "" || g.Mode == f.Mode) {
			out = append(out, g)
		}
	}

	slices.SortFunc(out, func(a, b domain.Game) int {
		return cmp.Or(
			compareTimeDesc(a.StartedAt, b.StartedAt),
			b.CreatedAt.Compare(a.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})

	return out, nil
}

func (m *Memory) AdvanceRound(_ context.Context, gameID string, from int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.games[gameID]
	if !ok {
		return false, fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	if g.Status != domain.GameStatusInProgress || g.CurrentRound != from {
		return false, nil
	}

	g.CurrentRound = from + 1
	m.games[gameID] = g
	return true, nil
}

func (m *Memory) CompleteGame(_ context.Context, c Completion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.games[c.GameID]
	if !ok {
		return false, fmt.Errorf("game %s: %w", c.GameID, ErrNotFound)
	}
	if !g.Status.CanTransitionTo(domain.GameStatusCompleted) {
		return false, nil
	}

	if c.WinnerID != "" {
		p, ok := m.players[c.WinnerID]
		if !ok || p.GameID != c.GameID {
			return false, fmt.Errorf("winner %s: %w", c.WinnerID, ErrNotFound)
		}
		round := c.WinnerRound
		p.IsWinner, p.FinalRound, p.RoundsCompleted = true, &round, round
		m.players[p.ID] = p
	}

	for id, p := range m.players {
		if p.GameID == c.GameID && p.CompletedAt == nil {
			at := c.EndedAt
			p.CompletedAt = &at
			m.players[id] = p
		}
	}

	ended := c.EndedAt
	g.Status, g.EndedAt = domain.GameStatusCompleted, &ended
	m.games[c.GameID] = g
	return true, nil
}

func (m *Memory) GetRound(_ context.Context, gameID string, number int) (*domain.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[roundKey{gameID, number}]
	if !ok {
		return nil, fmt.Errorf("round %s/%d: %w", gameID, number, ErrNotFound)
	}

	return &r, nil
}

func (m *Memory) ScheduleRound(_ context.Context, gameID string, number int, start time.Time, end *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := roundKey{gameID, number}
	r, ok := m.rounds[k]
	if !ok {
		return false, fmt.Errorf("round %s/%d: %w", gameID, number, ErrNotFound)
	}
	if r.StartedAt != nil {
		return false, nil
	}

	r.StartedAt, r.EndedAt = &start, end
	m.rounds[k] = r
	return true, nil
}

func (m *Memory) EndRound(_ context.Context, gameID string, number int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := roundKey{gameID, number}
	r, ok := m.rounds[k]
	if !ok {
		return fmt.Errorf("round %s/%d: %w", gameID, number, ErrNotFound)
	}

	r.EndedAt = &at
	m.rounds[k] = r
	return nil
}

func (m *Memory) ListPlayerResults(_ context.Context, gameID string) ([]domain.PlayerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.PlayerResult
	for _, id := range m.joined {
		if p := m.players[id]; p.GameID == gameID {
			out = append(out, m.withResults(p))
		}
	}

	return out, nil
}

func (m *Memory) FindPlayerResult(_ context.Context, f PlayerFilter) (*domain.PlayerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		found *domain.PlayerResult
		game  domain.Game
	)
	for _, id := range m.joined {
		p := m.players[id]
		g := m.games[p.GameID]
		if p.Identity.Key() != f.Identity.Key() ||
			(f.GameID != "" && g.ID != f.GameID) ||
			(f.GameStatus != "" && g.Status != f.GameStatus) ||
			(f.GameMode != "" && g.Mode != f.GameMode) {
			continue
		}
		if found == nil || compareTimeDesc(g.StartedAt, game.StartedAt) < 0 {
			pr := m.withResults(p)
			found, game = &pr, g
		}
	}

	if found == nil {
		return nil, fmt.Errorf("player %s: %w", f.Identity.Key(), ErrNotFound)
	}

	return found, nil
}

func (m *Memory) UpdateProgress(_ context.Context, playerResultID string, pr Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[playerResultID]
	if !ok {
		return fmt.Errorf("player result %s: %w", playerResultID, ErrNotFound)
	}

	p.RoundsCompleted = pr.RoundsCompleted
	if pr.FinalRound != nil {
		n := *pr.FinalRound
		p.FinalRound = &n
	}
	m.players[playerResultID] = p
	return nil
}

func (m *Memory) Eliminate(_ context.Context, playerResultID string, round int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[playerResultID]; !ok {
		return fmt.Errorf("player result %s: %w", playerResultID, ErrNotFound)
	}

	k := resultKey{playerResultID, round}
	rr, ok := m.results[k]
	if !ok {
		rr = domain.RoundResult{PlayerResultID: playerResultID, RoundNumber: round}
	}
	if !rr.IsEliminated {
		rr.IsEliminated, rr.EliminatedAt = true, &at
	}
	m.results[k] = rr
	return nil
}

func (m *Memory) EnsureRoundResult(_ context.Context, playerResultID string, round int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[playerResultID]; !ok {
		return fmt.Errorf("player result %s: %w", playerResultID, ErrNotFound)
	}

	k := resultKey{playerResultID, round}
	if _, ok := m.results[k]; !ok {
		m.results[k] = domain.RoundResult{PlayerResultID: playerResultID, RoundNumber: round}
	}
	return nil
}

func (m *Memory) RecordAttempt(_ context.Context, a *domain.SubmissionAttempt) (*domain.RoundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[a.PlayerResultID]; !ok {
		return nil, fmt.Errorf("player result %s: %w", a.PlayerResultID, ErrNotFound)
	}

	m.seq++
	a.Seq = m.seq
	m.attempts = append(m.attempts, *a)

	k := resultKey{a.PlayerResultID, a.RoundNumber}
	rr, ok := m.results[k]
	if !ok {
		rr = domain.RoundResult{PlayerResultID: a.PlayerResultID, RoundNumber: a.RoundNumber}
	}
	rr.TotalAttempts++
	if a.IsCorrect {
		rr.CorrectAttempts++
		if rr.FirstCorrectAt == nil {
			at := a.SubmittedAt
			rr.FirstCorrectAt = &at
		}
	}
	m.results[k] = rr

	return &rr, nil
}

func (m *Memory) LastAttempt(_ context.Context, playerResultID string, round int) (*domain.SubmissionAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last *domain.SubmissionAttempt
	for i := range m.attempts {
		a := m.attempts[i]
		if a.PlayerResultID != playerResultID || a.RoundNumber != round {
			continue
		}
		if last == nil || compareAttempts(a, *last) > 0 {
			last = &a
		}
	}

	if last == nil {
		return nil, fmt.Errorf("attempt %s/%d: %w", playerResultID, round, ErrNotFound)
	}

	return last, nil
}

func (m *Memory) CorrectAttempts(_ context.Context, gameID string, round int) ([]domain.SubmissionAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.SubmissionAttempt
	for _, a := range m.attempts {
		if a.GameID == gameID && a.RoundNumber == round && a.IsCorrect {
			out = append(out, a)
		}
	}

	slices.SortFunc(out, compareAttempts)
	return out, nil
}

func (m *Memory) Enqueue(_ context.Context, e domain.QueueEntry) (*domain.QueueEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.waitingIndex(e.Identity); i >= 0 {
		existing := m.queue[i]
		return &existing, false, nil
	}

	m.queue = append(m.queue, e)
	return &e, true, nil
}

func (m *Memory) FindWaiting(_ context.Context, id domain.PlayerIdentity) (*domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.waitingIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("queue %s: %w", id.Key(), ErrNotFound)
	}

	e := m.queue[i]
	return &e, nil
}

func (m *Memory) ListWaiting(_ context.Context) ([]domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.QueueEntry
	for _, e := range m.queue {
		if e.GameID == nil && e.LeftAt == nil {
			out = append(out, e)
		}
	}

	slices.SortStableFunc(out, func(a, b domain.QueueEntry) int {
		return a.JoinedAt.Compare(b.JoinedAt)
	})
	return out, nil
}

func (m *Memory) DeleteQueueEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.queueIndex(id)
	if i < 0 {
		return fmt.Errorf("queue entry %s: %w", id, ErrNotFound)
	}

	m.queue = slices.Delete(m.queue, i, i+1)
	return nil
}

func (m *Memory) withResults(p domain.PlayerResult) domain.PlayerResult {
	p.RoundResults = nil
	for k, rr := range m.results {
		if k.playerResultID == p.ID {
			p.RoundResults = append(p.RoundResults, rr)
		}
	}

	slices.SortFunc(p.RoundResults, func(a, b domain.RoundResult) int {
		return cmp.Compare(a.RoundNumber, b.RoundNumber)
	})
	return p
}

func (m *Memory) queueIndex(id string) int {
	return slices.IndexFunc(m.queue, func(e domain.QueueEntry) bool { return e.ID == id })
}

func (m *Memory) waitingIndex(id domain.PlayerIdentity) int {
	return slices.IndexFunc(m.queue, func(e domain.QueueEntry) bool {
		return e.GameID == nil && e.LeftAt == nil && e.Identity.Key() == id.Key()
	})
}

func compareAttempts(a, b domain.SubmissionAttempt) int {
	return cmp.Or(a.SubmittedAt.Compare(b.SubmittedAt), cmp.Compare(a.Seq, b.Seq))
}

// compareTimeDesc orders later times first and nil last.
func compareTimeDesc(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return b.Compare(*a)
	}
}
