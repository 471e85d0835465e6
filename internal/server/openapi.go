package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
)

// healthResult mirrors the body written by the health handler.
type healthResult map[string]struct {
	Status string `json:"status"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Radioguessr API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Guess where in the world a handful of radio stations are broadcasting from.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Reports the clip index and the station catalog.")
	getHealthz.AddRespStructure(healthResult{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(healthResult{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/start-round (GET is accepted as well)
	for _, method := range []string{http.MethodPost, http.MethodGet} {
		startRound, _ := r.NewOperationContext(method, "/api/start-round")
		startRound.SetSummary("Start a round")
		startRound.SetDescription("Picks a region with enough stations and returns three clips recorded near it. " +
			"round_id is opaque and must be sent back with the guess.")
		startRound.AddRespStructure(StartRoundResponse{}, openapi.WithHTTPStatus(http.StatusOK))
		startRound.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
		startRound.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
		_ = r.AddOperation(startRound)
	}

	// POST /api/guess
	postGuess, _ := r.NewOperationContext(http.MethodPost, "/api/guess")
	postGuess.SetSummary("Score a guess")
	postGuess.SetDescription("Scores a guessed location against the round's hidden centre. " +
		"The guess longitude may be sent as lon or lng.")
	postGuess.AddReqStructure(GuessRequest{})
	postGuess.AddRespStructure(GuessResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postGuess.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(postGuess)

	// GET /api/catalog
	getCatalog, _ := r.NewOperationContext(http.MethodGet, "/api/catalog")
	getCatalog.SetSummary("Catalog status")
	getCatalog.SetDescription("Station and dense cell counts of the loaded catalog.")
	getCatalog.AddRespStructure(CatalogResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getCatalog)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
