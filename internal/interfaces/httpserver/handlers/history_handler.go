package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"poster-api/internal/domain/history"
	"poster-api/internal/infrastructure/auth"
	"poster-api/internal/interfaces/httpserver/requests"
	"poster-api/internal/interfaces/httpserver/responses"
)

// HistoryHandler exposes the generation history endpoints.
type HistoryHandler struct {
	histLog *history.Log
	log     zerolog.Logger
}

func NewHistoryHandler(histLog *history.Log, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		histLog: histLog,
		log:     log.With().Str("component", "history-handler").Logger(),
	}
}

// List godoc
// @Summary      List generation history
// @Description  Returns a page of the caller's history, newest first. Successful entries carry a freshly signed URL.
// @Tags         history
// @Produce      json
// @Param        limit   query     int     false  "Page size"
// @Param        cursor  query     string  false  "Continuation cursor from a previous page"
// @Success      200     {object}  responses.HistoryListResponse
// @Failure      500     {object}  responses.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /v1/history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, next, err := h.histLog.List(c.Request.Context(), auth.Subject(c), limit, c.Query("cursor"))
	if err != nil {
		h.log.Error().Err(err).Msg("history listing failed")
		responses.HandleError(c, err, "failed to list history")
		return
	}
	c.JSON(http.StatusOK, responses.HistoryListResponse{Items: items, NextCursor: next})
}

// Delete godoc
// @Summary      Delete a history entry
// @Description  Soft-deletes one entry; the row is hidden from listings but existing share links keep working.
// @Tags         history
// @Accept       json
// @Produce      json
// @Param        request  body      requests.DeleteEntryRequest  true  "Entry to delete"
// @Success      200      {object}  map[string]string
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      404      {object}  responses.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /v1/history [delete]
func (h *HistoryHandler) Delete(c *gin.Context) {
	var req requests.DeleteEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.histLog.SoftDelete(c.Request.Context(), auth.Subject(c), req.SK); err != nil {
		responses.HandleError(c, err, "failed to delete history entry")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// SetFeatured godoc
// @Summary      Feature a history entry
// @Description  Marks one entry as featured and clears the flag from any previously featured entry.
// @Tags         history
// @Accept       json
// @Produce      json
// @Param        request  body      requests.FeatureRequest  true  "Entry to feature"
// @Success      200      {object}  map[string]string
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      404      {object}  responses.ErrorResponse
// @Failure      409      {object}  responses.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /v1/history/featured [post]
func (h *HistoryHandler) SetFeatured(c *gin.Context) {
	var req requests.FeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.histLog.SetFeatured(c.Request.Context(), auth.Subject(c), req.SK); err != nil {
		responses.HandleError(c, err, "failed to set featured entry")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "featured"})
}

// GetFeatured godoc
// @Summary      Current featured entry
// @Description  Returns the caller's featured poster with a fresh signed URL, or empty fields when none is featured.
// @Tags         history
// @Produce      json
// @Success      200  {object}  responses.FeaturedResponse
// @Failure      500  {object}  responses.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /v1/featured [get]
func (h *HistoryHandler) GetFeatured(c *gin.Context) {
	item, err := h.histLog.GetFeatured(c.Request.Context(), auth.Subject(c))
	if err != nil {
		h.log.Error().Err(err).Msg("featured lookup failed")
		responses.HandleError(c, err, "failed to look up featured entry")
		return
	}
	c.JSON(http.StatusOK, responses.BuildFeaturedResponse(item))
}
