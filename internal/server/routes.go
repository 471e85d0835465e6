package server

import (
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/radioguessr/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Radioguessr API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Checks).Routes())

	r.Route("/api", func(r chi.Router) {
		r.Get("/start-round", handleStartRound(logger, deps.Rounds))
		r.Post("/start-round", handleStartRound(logger, deps.Rounds))
		r.Post("/guess", handleGuess(logger, deps.Rounds))
		r.Get("/catalog", handleCatalog(deps.Catalog))
	})

	if deps.ClipDir != "" {
		prefix := "/" + strings.Trim(deps.ClipURLPrefix, "/")
		if prefix == "/" {
			prefix = "/clips"
		}
		r.Handle(prefix+"/*", handleClips(prefix, deps.ClipDir))
	}

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
