package api

import (
	"time"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/errors"
	"github.com/victornm/wordroyale/internal/lifecycle"
	"github.com/victornm/wordroyale/internal/progression"
	"github.com/victornm/wordroyale/internal/submission"
)

const tryAgain = "try again"

type (
	ProcessResult struct {
		Processed        bool    `json:"processed"`
		GameID           string  `json:"game_id,omitempty"`
		PreviousRound    int     `json:"previous_round,omitempty"`
		NextRound        *int    `json:"next_round"`
		EliminatedCount  int     `json:"eliminated_count"`
		RemainingPlayers int     `json:"remaining_players"`
		Winner           *string `json:"winner"`
		GameStatus       string  `json:"game_status,omitempty"`
	}

	ProcessAllResult struct {
		Processed int              `json:"processed"`
		Results   []ProcessResult  `json:"results"`
		Failed    []ProcessFailure `json:"failed,omitempty"`
	}

	ProcessFailure struct {
		GameID string        `json:"game_id"`
		Error  *errors.Error `json:"error"`
	}

	StartGameResult struct {
		Started     bool   `json:"started"`
		GameID      string `json:"game_id,omitempty"`
		PlayerCount int    `json:"player_count"`
		Resumed     bool   `json:"resumed,omitempty"`
		SessionID   string `json:"session_id,omitempty"`
	}

	SubmitRequest struct {
		Guess  string `json:"guess" binding:"required"`
		GameID string `json:"game_id"`
	}

	SubmitResult struct {
		Correct         bool    `json:"correct"`
		Message         string  `json:"message,omitempty"`
		GameID          string  `json:"game_id"`
		Round           int     `json:"round"`
		FinalRound      bool    `json:"final_round"`
		RoundComplete   bool    `json:"round_complete"`
		GameComplete    bool    `json:"game_complete"`
		NextRound       *int    `json:"next_round,omitempty"`
		Winner          *string `json:"winner,omitempty"`
		Attempts        int     `json:"attempts"`
		CorrectAttempts int     `json:"correct_attempts"`
		Solution        string  `json:"solution,omitempty"`
	}

	GameState struct {
		GameID        string       `json:"game_id"`
		Mode          string       `json:"mode"`
		Status        string       `json:"status"`
		CurrentRound  int          `json:"current_round"`
		MaxRounds     int          `json:"max_rounds"`
		Round         RoundState   `json:"round"`
		TotalPlayers  int          `json:"total_players"`
		ActivePlayers int          `json:"active_players"`
		Winner        *string      `json:"winner"`
		Me            *PlayerState `json:"me,omitempty"`
		StartedAt     *time.Time   `json:"started_at,omitempty"`
		EndedAt       *time.Time   `json:"ended_at,omitempty"`
		ServerTime    time.Time    `json:"server_time"`
	}

	RoundState struct {
		Number    int        `json:"number"`
		Length    int        `json:"length"`
		Final     bool       `json:"final"`
		Letters   string     `json:"letters,omitempty"`
		StartedAt *time.Time `json:"started_at,omitempty"`
		EndsAt    *time.Time `json:"ends_at,omitempty"`
		Solution  string     `json:"solution,omitempty"`
	}

	PlayerState struct {
		PlayerResultID  string `json:"player_result_id"`
		Status          string `json:"status"`
		RoundsCompleted int    `json:"rounds_completed"`
		FinalRound      *int   `json:"final_round,omitempty"`
		Attempts        int    `json:"attempts"`
		CorrectAttempts int    `json:"correct_attempts"`
		IsEliminated    bool   `json:"is_eliminated"`
	}

	QueueStatus struct {
		Waiting      int       `json:"waiting"`
		InQueue      bool      `json:"in_queue"`
		QueueOpen    bool      `json:"queue_open"`
		NextGameAt   time.Time `json:"next_game_at"`
		QueueOpensAt time.Time `json:"queue_opens_at"`
	}

	QueueEntry struct {
		ID        string    `json:"id"`
		Player    string    `json:"player"`
		JoinedAt  time.Time `json:"joined_at"`
		Created   bool      `json:"created"`
		SessionID string    `json:"session_id,omitempty"`
	}

	PlayerStats struct {
		Player          string  `json:"player"`
		GamesPlayed     int     `json:"games_played"`
		Wins            int     `json:"wins"`
		RoundsCompleted int     `json:"rounds_completed"`
		AverageRounds   float64 `json:"average_rounds"`
		Score           string  `json:"score"`
	}
)

func toProcessResult(r *progression.Result) ProcessResult {
	if r == nil {
		return ProcessResult{}
	}

	out := ProcessResult{
		Processed:        true,
		GameID:           r.GameID,
		PreviousRound:    r.PreviousRound,
		NextRound:        r.NextRound,
		EliminatedCount:  r.EliminatedCount,
		RemainingPlayers: r.RemainingPlayers,
		GameStatus:       string(r.Status),
	}
	if r.Winner != nil {
		out.Winner = &r.Winner.Player
	}

	return out
}

func toProcessAllResult(s *progression.Sweep) ProcessAllResult {
	out := ProcessAllResult{
		Processed: len(s.Results),
		Results:   make([]ProcessResult, 0, len(s.Results)),
	}
	for i := range s.Results {
		out.Results = append(out.Results, toProcessResult(&s.Results[i]))
	}
	for _, f := range s.Failures {
		out.Failed = append(out.Failed, ProcessFailure{GameID: f.GameID, Error: errors.Convert(f.Err)})
	}

	return out
}

func toSubmitResult(r *submission.SubmitResponse) SubmitResult {
	out := SubmitResult{
		Correct:         r.Correct,
		GameID:          r.GameID,
		Round:           r.RoundNumber,
		FinalRound:      r.FinalRound,
		RoundComplete:   r.RoundComplete,
		GameComplete:    r.GameComplete,
		NextRound:       r.NextRound,
		Winner:          r.Winner,
		Attempts:        r.TotalAttempts,
		CorrectAttempts: r.CorrectAttempts,
		Solution:        r.Solution,
	}
	if !r.Correct {
		out.Message = tryAgain
	}

	return out
}

func toGameState(st *lifecycle.GameState) GameState {
	out := GameState{
		GameID:        st.Game.ID,
		Mode:          string(st.Game.Mode),
		Status:        string(st.Game.Status),
		CurrentRound:  st.Game.CurrentRound,
		MaxRounds:     st.Game.Progression.MaxRounds,
		TotalPlayers:  st.TotalPlayers,
		ActivePlayers: st.ActivePlayers,
		Winner:        st.Winner,
		StartedAt:     st.Game.StartedAt,
		EndedAt:       st.Game.EndedAt,
		ServerTime:    st.ServerTime,
		Round: RoundState{
			Number:    st.Round.Number,
			Length:    st.Round.Length,
			Final:     st.Round.Final,
			Letters:   st.Round.Anagram,
			StartedAt: st.Round.StartedAt,
			EndsAt:    st.Round.EndsAt,
			Solution:  st.Round.Solution,
		},
	}

	if me := st.Me; me != nil {
		out.Me = &PlayerState{
			PlayerResultID:  me.PlayerResultID,
			Status:          string(me.Status),
			RoundsCompleted: me.RoundsCompleted,
			FinalRound:      me.FinalRound,
			IsEliminated:    me.Status == lifecycle.PlayerStatusEliminated,
		}
		if rr := me.Round; rr != nil {
			out.Me.Attempts = rr.TotalAttempts
			out.Me.CorrectAttempts = rr.CorrectAttempts
		}
	}

	return out
}

func toQueueEntry(e *domain.QueueEntry, created bool) QueueEntry {
	return QueueEntry{
		ID:       e.ID,
		Player:   e.Identity.Key(),
		JoinedAt: e.JoinedAt,
		Created:  created,
	}
}
