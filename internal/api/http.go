package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/errors"
	"github.com/victornm/wordroyale/internal/identity"
	"github.com/victornm/wordroyale/internal/submission"
)

const identityKey = "identity"

type identityMode int

const (
	identityRequired identityMode = iota
	identityOptional
	// identityMint hands out a fresh anonymous session when the caller sent none.
	identityMint
)

func requireSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader(identity.HeaderAuthorization), "Bearer ")
		if !ok || !validSecret(token, secret) {
			writeError(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid trigger secret")))
			return
		}

		c.Next()
	}
}

// validSecret compares in constant time. An unset secret accepts nothing.
func validSecret(token, secret string) bool {
	return secret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

func (a *API) identify(mode identityMode) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth, session := c.GetHeader(identity.HeaderAuthorization), c.GetHeader(identity.HeaderSessionID)

		if auth == "" && session == "" {
			switch mode {
			case identityOptional:
				c.Next()
				return
			case identityMint:
				id, err := identity.NewSessionID()
				if err != nil {
					writeError(c, errors.Internal(err))
					return
				}
				c.Header(identity.HeaderSessionID, id)
				c.Set(identityKey, domain.Anonymous{SessionID: id})
				c.Next()
				return
			}
		}

		id, err := a.ids.Resolve(auth, session)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

func caller(c *gin.Context) domain.PlayerIdentity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}

	return v.(domain.PlayerIdentity)
}

// mintedSession returns the session id handed out to this request, if any.
func mintedSession(c *gin.Context) string {
	return c.Writer.Header().Get(identity.HeaderSessionID)
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}

func (a *API) processCurrent(c *gin.Context) {
	res, err := a.ps.ProcessCurrent(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProcessResult(res))
}

// processAll answers 200 with the failed games listed; only failing to list the games
// is an error.
func (a *API) processAll(c *gin.Context) {
	sweep, err := a.ps.ProcessAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProcessAllResult(sweep))
}

func (a *API) startGame(c *gin.Context) {
	res, err := a.lcs.StartGame(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusOK, StartGameResult{})
		return
	}

	c.JSON(http.StatusCreated, StartGameResult{
		Started:     true,
		GameID:      res.GameID,
		PlayerCount: res.PlayerCount,
	})
}

func (a *API) forceEndRound(c *gin.Context) {
	res, err := a.ps.ForceEndRound(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProcessResult(res))
}

func (a *API) submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.ErrInvalidGuess.With(errors.WithMessagef("guess is required"), errors.WithCause(err)))
		return
	}

	res, err := a.ss.Submit(c.Request.Context(), submission.SubmitRequest{
		Identity: caller(c),
		GameID:   req.GameID,
		Guess:    req.Guess,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSubmitResult(res))
}

func (a *API) currentGame(c *gin.Context) {
	st, err := a.lcs.CurrentGame(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toGameState(st))
}

func (a *API) gameState(c *gin.Context) {
	st, err := a.lcs.GameState(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toGameState(st))
}

func (a *API) abandon(c *gin.Context) {
	if err := a.lcs.Abandon(c.Request.Context(), caller(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) startDaily(c *gin.Context) {
	res, err := a.lcs.StartDaily(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}

	c.JSON(status, StartGameResult{
		Started:     true,
		GameID:      res.GameID,
		PlayerCount: res.PlayerCount,
		Resumed:     res.Resumed,
		SessionID:   mintedSession(c),
	})
}

func (a *API) queueStatus(c *gin.Context) {
	st, err := a.lcs.QueueStatus(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, QueueStatus{
		Waiting:      st.Waiting,
		InQueue:      st.InQueue,
		QueueOpen:    st.QueueOpen,
		NextGameAt:   st.NextGameAt,
		QueueOpensAt: st.QueueOpensAt,
	})
}

func (a *API) joinQueue(c *gin.Context) {
	e, created, err := a.lcs.JoinQueue(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}

	out := toQueueEntry(e, created)
	out.SessionID = mintedSession(c)
	c.JSON(http.StatusOK, out)
}

func (a *API) leaveQueue(c *gin.Context) {
	if err := a.lcs.LeaveQueue(c.Request.Context(), caller(c)); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) leaderboard(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("limit must be a positive number")))
		return
	}

	l, err := a.ls.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(l))
}

func (a *API) playerStats(c *gin.Context) {
	st, err := a.ls.GetPlayerStats(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, PlayerStats{
		Player:          st.Player,
		GamesPlayed:     st.GamesPlayed,
		Wins:            st.Wins,
		RoundsCompleted: st.RoundsCompleted,
		AverageRounds:   st.AverageRounds,
		Score:           formatScore(st.Score),
	})
}
