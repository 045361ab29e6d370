package handlers

import (
	"github.com/rs/zerolog"

	"poster-api/internal/config"
	"poster-api/internal/domain/credits"
	"poster-api/internal/domain/history"
	"poster-api/internal/domain/poster"
	"poster-api/internal/domain/share"
)

// Provider wires HTTP handlers.
type Provider struct {
	Credits *CreditsHandler
	Poster  *PosterHandler
	History *HistoryHandler
	Share   *ShareHandler
}

func NewProvider(cfg *config.Config, ledger *credits.Ledger, histLog *history.Log, posterService *poster.Service, issuer *share.Issuer, log zerolog.Logger) *Provider {
	return &Provider{
		Credits: NewCreditsHandler(ledger, log),
		Poster:  NewPosterHandler(cfg, posterService, log),
		History: NewHistoryHandler(histLog, log),
		Share:   NewShareHandler(issuer, log),
	}
}
