package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/scraper"
)

// ScrapeRunner executes one scrape job to completion
type ScrapeRunner interface {
	Run(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResponse, error)
}

// ScrapeHandler serves synchronous scrape submissions
type ScrapeHandler struct {
	engine   ScrapeRunner
	validate *validator.Validate
	logger   arbor.ILogger
}

func NewScrapeHandler(engine ScrapeRunner, validate *validator.Validate, logger arbor.ILogger) *ScrapeHandler {
	return &ScrapeHandler{
		engine:   engine,
		validate: validate,
		logger:   logger,
	}
}

// ScrapeHandler runs a job and responds once it ends.
// POST /api/scrape {url, maxItems?, timeoutMs?, jobId?}
// A missing or invalid url still creates the job and leaves it in error.
func (h *ScrapeHandler) ScrapeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.ScrapeRequest
	if err := DecodeJSON(w, r, h.validate, &req); err != nil {
		h.logger.Debug().Err(err).Msg("Rejected scrape request")
		WriteError(w, http.StatusBadRequest, "Provide 'url' in JSON body: "+err.Error())
		return
	}

	resp, err := h.engine.Run(r.Context(), &req)
	if err != nil {
		jobID := req.JobID
		var runErr *scraper.RunError
		if errors.As(err, &runErr) {
			jobID = runErr.JobID
		}

		status := http.StatusInternalServerError
		message := err.Error()
		if errors.Is(err, common.ErrInvalidURL) {
			status = http.StatusBadRequest
			message = "Provide 'url' in JSON body: " + message
		}
		WriteJSON(w, status, map[string]interface{}{
			"error": message,
			"debug": map[string]string{"jobId": jobID},
		})
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}
