package domain

const (
	EventNameGameStarted        = "game.started"
	EventNameRoundAdvanced      = "round.advanced"
	EventNameGameCompleted      = "game.completed"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventGameStarted struct {
	Game        Game
	PlayerCount int
}

func (EventGameStarted) Name() string { return EventNameGameStarted }

type EventRoundAdvanced struct {
	GameID           string
	PreviousRound    int
	NextRound        int
	EliminatedCount  int
	RemainingPlayers int
}

func (EventRoundAdvanced) Name() string { return EventNameRoundAdvanced }

// EventGameCompleted carries the final state of every player of the game.
type EventGameCompleted struct {
	Game    Game
	Winner  *string
	Players []PlayerResult
}

func (EventGameCompleted) Name() string { return EventNameGameCompleted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
