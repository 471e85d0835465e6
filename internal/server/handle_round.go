package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/playperu/radioguessr/internal/radioguessr"
	"github.com/playperu/radioguessr/internal/round"
)

type RoundService interface {
	StartRound(ctx context.Context) (radioguessr.Round, error)
	ScoreGuess(ctx context.Context, token string, guess round.Guess) (radioguessr.GuessResult, error)
}

type StartRoundResponse struct {
	RoundID string             `json:"round_id"`
	Clips   []radioguessr.Clip `json:"clips"`
}

func handleStartRound(logger *slog.Logger, rounds RoundService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rd, err := rounds.StartRound(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, StartRoundResponse{
			RoundID: rd.Token,
			Clips:   rd.Clips,
		})
	}
}
