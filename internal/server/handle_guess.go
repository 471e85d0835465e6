package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/playperu/radioguessr/internal/radioguessr"
	"github.com/playperu/radioguessr/internal/round"
)

type GuessRequest struct {
	RoundID string       `json:"round_id"`
	Guess   *round.Guess `json:"guess"`
}

type GuessResponse struct {
	RoundID        string            `json:"round_id"`
	DistanceKm     float64           `json:"distance_km"`
	Score          int               `json:"score"`
	ActualLocation radioguessr.Coord `json:"actual_location"`
	Reveals        RevealsResponse   `json:"reveals"`
}

type RevealsResponse struct {
	Timestamp string   `json:"timestamp"`
	Tags      []string `json:"tags"`
}

func handleGuess(logger *slog.Logger, rounds RoundService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GuessRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.RoundID = strings.TrimSpace(req.RoundID)
		if req.RoundID == "" {
			writeError(w, http.StatusBadRequest, "round_id is required")
			return
		}
		if req.Guess == nil {
			writeError(w, http.StatusBadRequest, "Invalid coordinates")
			return
		}

		res, err := rounds.ScoreGuess(r.Context(), req.RoundID, *req.Guess)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, GuessResponse{
			RoundID:        res.Token,
			DistanceKm:     res.DistanceKm,
			Score:          res.Score,
			ActualLocation: res.Actual,
			Reveals: RevealsResponse{
				Timestamp: res.Reveals.Timestamp.Format(time.RFC3339),
				Tags:      res.Reveals.Tags,
			},
		})
	}
}
