package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"poster-api/internal/domain/credits"
	"poster-api/internal/infrastructure/auth"
	"poster-api/internal/interfaces/httpserver/responses"
)

// CreditsHandler exposes the credit balance endpoint.
type CreditsHandler struct {
	ledger *credits.Ledger
	log    zerolog.Logger
}

func NewCreditsHandler(ledger *credits.Ledger, log zerolog.Logger) *CreditsHandler {
	return &CreditsHandler{
		ledger: ledger,
		log:    log.With().Str("component", "credits-handler").Logger(),
	}
}

// Get godoc
// @Summary      Current credit balance
// @Description  Returns the caller's remaining credits, reflecting any pending refill.
// @Tags         credits
// @Produce      json
// @Success      200  {object}  responses.CreditsResponse
// @Failure      500  {object}  responses.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /v1/credits [get]
func (h *CreditsHandler) Get(c *gin.Context) {
	balance, err := h.ledger.Peek(c.Request.Context(), auth.Subject(c))
	if err != nil {
		h.log.Error().Err(err).Msg("credit balance lookup failed")
		responses.HandleError(c, err, "failed to read credit balance")
		return
	}
	c.JSON(http.StatusOK, responses.CreditsResponse{Credits: balance})
}
