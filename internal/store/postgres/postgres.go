// Package postgres implements store.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"embed"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/rules"
	"github.com/victornm/wordroyale/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	sqlDB := stdlib.OpenDBFromPool(db)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("run goose migrations: %w", err)
	}

	return nil
}

type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) CreateGame(ctx context.Context, g store.NewGame) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		const (
			insGameStmt = `
INSERT INTO games (id, mode, status, current_round, initial_time_seconds, time_decrease_per_round,
	initial_anagram_length, length_increase_per_round, max_rounds, created_at, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`
			insRoundStmt = `
INSERT INTO rounds (game_id, round_number, anagram, solution, time_seconds, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`
			insPlayerStmt = `
INSERT INTO player_results (id, game_id, user_id, session_id, rounds_completed, is_winner, final_round, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
			insRoundResultStmt = `
INSERT INTO round_results (player_result_id, round_number, is_eliminated, total_attempts, correct_attempts,
	first_correct_at, eliminated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`
			assignQueueStmt = `
UPDATE queue_entries SET game_id = $1
WHERE id = ANY($2) AND game_id IS NULL AND left_at IS NULL;`
		)

		p := g.Game.Progression
		b := &pgx.Batch{}
		b.Queue(insGameStmt, g.Game.ID, g.Game.Mode, g.Game.Status, g.Game.CurrentRound,
			p.InitialTimeSeconds, p.TimeDecreasePerRound, p.InitialAnagramLength, p.LengthIncreasePerRound, p.MaxRounds,
			g.Game.CreatedAt, g.Game.StartedAt, g.Game.EndedAt)

		for _, r := range g.Rounds {
			b.Queue(insRoundStmt, g.Game.ID, r.Number, r.Anagram, r.Solution, int(r.TimeBudget/time.Second), r.StartedAt, r.EndedAt)
		}

		for _, pr := range g.Players {
			userID, sessionID := domain.IdentityColumns(pr.Identity)
			b.Queue(insPlayerStmt, pr.ID, g.Game.ID, userID, sessionID, pr.RoundsCompleted, pr.IsWinner, pr.FinalRound, pr.CreatedAt)
			for _, rr := range pr.RoundResults {
				b.Queue(insRoundResultStmt, pr.ID, rr.RoundNumber, rr.IsEliminated, rr.TotalAttempts, rr.CorrectAttempts,
					rr.FirstCorrectAt, rr.EliminatedAt)
			}
		}

		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("insert game: %w", err)
		}

		if len(g.QueueEntryIDs) == 0 {
			return nil
		}

		tag, err := tx.Exec(ctx, assignQueueStmt, g.Game.ID, g.QueueEntryIDs)
		if err != nil {
			return fmt.Errorf("assign queue entries: %w", err)
		}
		if tag.RowsAffected() != int64(len(g.QueueEntryIDs)) {
			return fmt.Errorf("assign queue entries: %d of %d entries were waiting", tag.RowsAffected(), len(g.QueueEntryIDs))
		}

		return nil
	})
}

const gameColumns = `id, mode, status, current_round, initial_time_seconds, time_decrease_per_round,
	initial_anagram_length, length_increase_per_round, max_rounds, created_at, started_at, ended_at`

func scanGame(row pgx.Row) (domain.Game, error) {
	var (
		g domain.Game
		p rules.Config
	)
	err := row.Scan(&g.ID, &g.Mode, &g.Status, &g.CurrentRound, &p.InitialTimeSeconds, &p.TimeDecreasePerRound,
		&p.InitialAnagramLength, &p.LengthIncreasePerRound, &p.MaxRounds, &g.CreatedAt, &g.StartedAt, &g.EndedAt)
	g.Progression = p
	return g, err
}

func (s *Store) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	if !validID(id) {
		return nil, fmt.Errorf("game %s: %w", id, store.ErrNotFound)
	}

	g, err := scanGame(s.db.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1;`, id))
	if err != nil {
		return nil, notFound(err, "game %s", id)
	}

	return &g, nil
}

func (s *Store) ListGames(ctx context.Context, f store.GameFilter) ([]domain.Game, error) {
	const stmt = `
SELECT ` + gameColumns + `
FROM games
WHERE ($1::text IS NULL OR status = $1) AND ($2::text IS NULL OR mode = $2)
ORDER BY started_at DESC NULLS LAST, created_at DESC, id;`

	rows, err := s.db.Query(ctx, stmt, nullable(string(f.Status)), nullable(string(f.Mode)))
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Game, error) {
		return scanGame(r)
	})
}

func (s *Store) AdvanceRound(ctx context.Context, gameID string, from int) (bool, error) {
	const stmt = `
UPDATE games SET current_round = $2 + 1
WHERE id = $1 AND status = 'IN_PROGRESS' AND current_round = $2;`

	tag, err := s.db.Exec(ctx, stmt, gameID, from)
	if err != nil {
		return false, fmt.Errorf("advance round: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	return false, s.mustExist(ctx, s.db, `SELECT EXISTS (SELECT 1 FROM games WHERE id = $1);`, "game "+gameID, gameID)
}

func (s *Store) CompleteGame(ctx context.Context, c store.Completion) (bool, error) {
	completed := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		const (
			completeStmt = `UPDATE games SET status = 'COMPLETED', ended_at = $2 WHERE id = $1 AND status = 'IN_PROGRESS';`
			winnerStmt   = `
UPDATE player_results SET is_winner = TRUE, final_round = $3, rounds_completed = $3
WHERE id = $1 AND game_id = $2;`
			finishStmt = `UPDATE player_results SET completed_at = $2 WHERE game_id = $1 AND completed_at IS NULL;`
		)

		tag, err := tx.Exec(ctx, completeStmt, c.GameID, c.EndedAt)
		if err != nil {
			return fmt.Errorf("complete game: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return s.mustExist(ctx, tx, `SELECT EXISTS (SELECT 1 FROM games WHERE id = $1);`, "game "+c.GameID, c.GameID)
		}

		if c.WinnerID != "" {
			tag, err := tx.Exec(ctx, winnerStmt, c.WinnerID, c.GameID, c.WinnerRound)
			if err != nil {
				return fmt.Errorf("flag winner: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("winner %s: %w", c.WinnerID, store.ErrNotFound)
			}
		}

		if _, err := tx.Exec(ctx, finishStmt, c.GameID, c.EndedAt); err != nil {
			return fmt.Errorf("finish players: %w", err)
		}

		completed = true
		return nil
	})

	return completed, err
}

func (s *Store) GetRound(ctx context.Context, gameID string, number int) (*domain.Round, error) {
	const stmt = `
SELECT game_id, round_number, anagram, solution, time_seconds, started_at, ended_at
FROM rounds WHERE game_id = $1 AND round_number = $2;`

	if !validID(gameID) {
		return nil, fmt.Errorf("round %s/%d: %w", gameID, number, store.ErrNotFound)
	}

	var (
		r       domain.Round
		seconds int
	)
	err := s.db.QueryRow(ctx, stmt, gameID, number).Scan(&r.GameID, &r.Number, &r.Anagram, &r.Solution, &seconds, &r.StartedAt, &r.EndedAt)
	if err != nil {
		return nil, notFound(err, "round %s/%d", gameID, number)
	}
	r.TimeBudget = time.Duration(seconds) * time.Second

	return &r, nil
}

func (s *Store) ScheduleRound(ctx context.Context, gameID string, number int, start time.Time, end *time.Time) (bool, error) {
	const stmt = `
UPDATE rounds SET started_at = $3, ended_at = $4
WHERE game_id = $1 AND round_number = $2 AND started_at IS NULL;`

	tag, err := s.db.Exec(ctx, stmt, gameID, number, start, end)
	if err != nil {
		return false, fmt.Errorf("schedule round: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	return false, s.mustExist(ctx, s.db, `SELECT EXISTS (SELECT 1 FROM rounds WHERE game_id = $1 AND round_number = $2);`,
		fmt.Sprintf("round %s/%d", gameID, number), gameID, number)
}

func (s *Store) EndRound(ctx context.Context, gameID string, number int, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE rounds SET ended_at = $3 WHERE game_id = $1 AND round_number = $2;`, gameID, number, at)
	if err != nil {
		return fmt.Errorf("end round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("round %s/%d: %w", gameID, number, store.ErrNotFound)
	}

	return nil
}

const playerColumns = `p.id, p.game_id, p.user_id, p.session_id, p.rounds_completed, p.is_winner, p.final_round,
	p.completed_at, p.created_at`

func scanPlayer(row pgx.Row) (domain.PlayerResult, error) {
	var (
		p                 domain.PlayerResult
		userID, sessionID *string
	)
	if err := row.Scan(&p.ID, &p.GameID, &userID, &sessionID, &p.RoundsCompleted, &p.IsWinner, &p.FinalRound,
		&p.CompletedAt, &p.CreatedAt); err != nil {
		return p, err
	}

	id, err := domain.IdentityFromColumns(userID, sessionID)
	p.Identity = id
	return p, err
}

func (s *Store) ListPlayerResults(ctx context.Context, gameID string) ([]domain.PlayerResult, error) {
	const stmt = `
SELECT ` + playerColumns + `
FROM player_results p WHERE p.game_id = $1
ORDER BY p.created_at, p.id;`

	rows, err := s.db.Query(ctx, stmt, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	players, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.PlayerResult, error) {
		return scanPlayer(r)
	})
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	const rrStmt = `
SELECT ` + roundResultColumns + `
FROM round_results rr JOIN player_results p ON p.id = rr.player_result_id
WHERE p.game_id = $1
ORDER BY rr.round_number;`

	results, err := s.roundResults(ctx, rrStmt, gameID)
	if err != nil {
		return nil, err
	}

	for i := range players {
		players[i].RoundResults = results[players[i].ID]
	}

	return players, nil
}

func (s *Store) FindPlayerResult(ctx context.Context, f store.PlayerFilter) (*domain.PlayerResult, error) {
	const stmt = `
SELECT ` + playerColumns + `
FROM player_results p JOIN games g ON g.id = p.game_id
WHERE p.user_id IS NOT DISTINCT FROM $1 AND p.session_id IS NOT DISTINCT FROM $2
	AND ($3::uuid IS NULL OR g.id = $3)
	AND ($4::text IS NULL OR g.status = $4)
	AND ($5::text IS NULL OR g.mode = $5)
ORDER BY g.started_at DESC NULLS LAST
LIMIT 1;`

	if f.GameID != "" && !validID(f.GameID) {
		return nil, fmt.Errorf("player %s in game %s: %w", f.Identity.Key(), f.GameID, store.ErrNotFound)
	}

	userID, sessionID := domain.IdentityColumns(f.Identity)
	p, err := scanPlayer(s.db.QueryRow(ctx, stmt, userID, sessionID,
		nullable(f.GameID), nullable(string(f.GameStatus)), nullable(string(f.GameMode))))
	if err != nil {
		return nil, notFound(err, "player %s", f.Identity.Key())
	}

	const rrStmt = `
SELECT ` + roundResultColumns + `
FROM round_results rr WHERE rr.player_result_id = $1
ORDER BY rr.round_number;`

	results, err := s.roundResults(ctx, rrStmt, p.ID)
	if err != nil {
		return nil, err
	}
	p.RoundResults = results[p.ID]

	return &p, nil
}

func (s *Store) UpdateProgress(ctx context.Context, playerResultID string, p store.Progress) error {
	const stmt = `
UPDATE player_results SET rounds_completed = $2, final_round = COALESCE($3, final_round)
WHERE id = $1;`

	tag, err := s.db.Exec(ctx, stmt, playerResultID, p.RoundsCompleted, p.FinalRound)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("player result %s: %w", playerResultID, store.ErrNotFound)
	}

	return nil
}

func (s *Store) Eliminate(ctx context.Context, playerResultID string, round int, at time.Time) error {
	const stmt = `
INSERT INTO round_results (player_result_id, round_number, is_eliminated, eliminated_at)
VALUES ($1, $2, TRUE, $3)
ON CONFLICT (player_result_id, round_number) DO UPDATE
SET is_eliminated = TRUE, eliminated_at = COALESCE(round_results.eliminated_at, EXCLUDED.eliminated_at);`

	_, err := s.db.Exec(ctx, stmt, playerResultID, round, at)
	return playerWriteErr(err, "eliminate", playerResultID)
}

func (s *Store) EnsureRoundResult(ctx context.Context, playerResultID string, round int) error {
	const stmt = `
INSERT INTO round_results (player_result_id, round_number) VALUES ($1, $2)
ON CONFLICT (player_result_id, round_number) DO NOTHING;`

	_, err := s.db.Exec(ctx, stmt, playerResultID, round)
	return playerWriteErr(err, "ensure round result", playerResultID)
}

const roundResultColumns = `rr.player_result_id, rr.round_number, rr.is_eliminated, rr.total_attempts,
	rr.correct_attempts, rr.first_correct_at, rr.eliminated_at`

func scanRoundResult(row pgx.Row) (domain.RoundResult, error) {
	var rr domain.RoundResult
	err := row.Scan(&rr.PlayerResultID, &rr.RoundNumber, &rr.IsEliminated, &rr.TotalAttempts,
		&rr.CorrectAttempts, &rr.FirstCorrectAt, &rr.EliminatedAt)
	return rr, err
}

func (s *Store) roundResults(ctx context.Context, stmt string, args ...any) (map[string][]domain.RoundResult, error) {
	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list round results: %w", err)
	}

	list, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.RoundResult, error) {
		return scanRoundResult(r)
	})
	if err != nil {
		return nil, fmt.Errorf("list round results: %w", err)
	}

	out := make(map[string][]domain.RoundResult)
	for _, rr := range list {
		out[rr.PlayerResultID] = append(out[rr.PlayerResultID], rr)
	}

	return out, nil
}

func (s *Store) RecordAttempt(ctx context.Context, a *domain.SubmissionAttempt) (*domain.RoundResult, error) {
	var rr domain.RoundResult
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		const (
			insAttemptStmt = `
INSERT INTO submission_attempts (id, player_result_id, game_id, round_number, answer, is_correct,
	submitted_at, since_round_start_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING seq;`
			upsertResultStmt = `
INSERT INTO round_results AS rr (player_result_id, round_number, total_attempts, correct_attempts, first_correct_at)
VALUES ($1, $2, 1, $3, $4)
ON CONFLICT (player_result_id, round_number) DO UPDATE
SET total_attempts = rr.total_attempts + 1,
	correct_attempts = rr.correct_attempts + EXCLUDED.correct_attempts,
	first_correct_at = COALESCE(rr.first_correct_at, EXCLUDED.first_correct_at)
RETURNING ` + roundResultColumns + `;`
		)

		err := tx.QueryRow(ctx, insAttemptStmt, a.ID, a.PlayerResultID, a.GameID, a.RoundNumber, a.Answer, a.IsCorrect,
			a.SubmittedAt, a.SinceRoundStart.Milliseconds()).Scan(&a.Seq)
		if err != nil {
			return playerWriteErr(err, "insert attempt", a.PlayerResultID)
		}

		var (
			correct      int
			firstCorrect *time.Time
		)
		if a.IsCorrect {
			correct, firstCorrect = 1, &a.SubmittedAt
		}

		rr, err = scanRoundResult(tx.QueryRow(ctx, upsertResultStmt, a.PlayerResultID, a.RoundNumber, correct, firstCorrect))
		if err != nil {
			return fmt.Errorf("upsert round result: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &rr, nil
}

const attemptColumns = `id, seq, player_result_id, game_id, round_number, answer, is_correct, submitted_at, since_round_start_ms`

func scanAttempt(row pgx.Row) (domain.SubmissionAttempt, error) {
	var (
		a  domain.SubmissionAttempt
		ms int64
	)
	err := row.Scan(&a.ID, &a.Seq, &a.PlayerResultID, &a.GameID, &a.RoundNumber, &a.Answer, &a.IsCorrect, &a.SubmittedAt, &ms)
	a.SinceRoundStart = time.Duration(ms) * time.Millisecond
	return a, err
}

func (s *Store) LastAttempt(ctx context.Context, playerResultID string, round int) (*domain.SubmissionAttempt, error) {
	const stmt = `
SELECT ` + attemptColumns + `
FROM submission_attempts WHERE player_result_id = $1 AND round_number = $2
ORDER BY submitted_at DESC, seq DESC
LIMIT 1;`

	a, err := scanAttempt(s.db.QueryRow(ctx, stmt, playerResultID, round))
	if err != nil {
		return nil, notFound(err, "attempt %s/%d", playerResultID, round)
	}

	return &a, nil
}

func (s *Store) CorrectAttempts(ctx context.Context, gameID string, round int) ([]domain.SubmissionAttempt, error) {
	const stmt = `
SELECT ` + attemptColumns + `
FROM submission_attempts WHERE game_id = $1 AND round_number = $2 AND is_correct
ORDER BY submitted_at, seq;`

	rows, err := s.db.Query(ctx, stmt, gameID, round)
	if err != nil {
		return nil, fmt.Errorf("list correct attempts: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.SubmissionAttempt, error) {
		return scanAttempt(r)
	})
}

const queueColumns = `id, user_id, session_id, joined_at, left_at, game_id`

func scanQueueEntry(row pgx.Row) (domain.QueueEntry, error) {
	var (
		e                 domain.QueueEntry
		userID, sessionID *string
	)
	if err := row.Scan(&e.ID, &userID, &sessionID, &e.JoinedAt, &e.LeftAt, &e.GameID); err != nil {
		return e, err
	}

	id, err := domain.IdentityFromColumns(userID, sessionID)
	e.Identity = id
	return e, err
}

func (s *Store) Enqueue(ctx context.Context, e domain.QueueEntry) (*domain.QueueEntry, bool, error) {
	const stmt = `
INSERT INTO queue_entries (id, user_id, session_id, joined_at) VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
RETURNING ` + queueColumns + `;`

	userID, sessionID := domain.IdentityColumns(e.Identity)
	created, err := scanQueueEntry(s.db.QueryRow(ctx, stmt, e.ID, userID, sessionID, e.JoinedAt))
	if err == nil {
		return &created, true, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("enqueue: %w", err)
	}

	existing, err := s.FindWaiting(ctx, e.Identity)
	if err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

func (s *Store) FindWaiting(ctx context.Context, id domain.PlayerIdentity) (*domain.QueueEntry, error) {
	const stmt = `
SELECT ` + queueColumns + `
FROM queue_entries
WHERE user_id IS NOT DISTINCT FROM $1 AND session_id IS NOT DISTINCT FROM $2
	AND game_id IS NULL AND left_at IS NULL;`

	userID, sessionID := domain.IdentityColumns(id)
	e, err := scanQueueEntry(s.db.QueryRow(ctx, stmt, userID, sessionID))
	if err != nil {
		return nil, notFound(err, "queue %s", id.Key())
	}

	return &e, nil
}

func (s *Store) ListWaiting(ctx context.Context) ([]domain.QueueEntry, error) {
	const stmt = `
SELECT ` + queueColumns + `
FROM queue_entries WHERE game_id IS NULL AND left_at IS NULL
ORDER BY joined_at, id;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.QueueEntry, error) {
		return scanQueueEntry(r)
	})
}

func (s *Store) DeleteQueueEntry(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM queue_entries WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("queue entry %s: %w", id, store.ErrNotFound)
	}

	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) mustExist(ctx context.Context, q querier, stmt, what string, args ...any) error {
	var exists bool
	if err := q.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}

	return nil
}

// notFound maps a missing row, or a key that is not a valid UUID, to store.ErrNotFound.
func notFound(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeInvalidText {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}

	return fmt.Errorf("%s: %w", what, err)
}

// playerWriteErr maps a missing parent row to store.ErrNotFound.
func playerWriteErr(err error, op, playerResultID string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
		return fmt.Errorf("%s: player result %s: %w", op, playerResultID, store.ErrNotFound)
	}
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return fmt.Errorf("%s: duplicate: %w", op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// validID reports whether id can be a key of the uuid columns.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
