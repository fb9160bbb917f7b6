package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/assembler"
	"github.com/ternarybob/harvester/internal/services/export"
)

// ExportRequest is the body of POST /api/export
type ExportRequest struct {
	Scraped     *models.ScrapedData `json:"scraped" validate:"required"`
	Destination string              `json:"destination,omitempty" validate:"omitempty,max=255"`
}

// ExportHandler hands assembled catalogs to the export writer
type ExportHandler struct {
	writer      interfaces.ExportWriter
	credentials interfaces.CredentialProvider
	validate    *validator.Validate
	logger      arbor.ILogger
}

func NewExportHandler(writer interfaces.ExportWriter, credentials interfaces.CredentialProvider, validate *validator.Validate, logger arbor.ILogger) *ExportHandler {
	return &ExportHandler{
		writer:      writer,
		credentials: credentials,
		validate:    validate,
		logger:      logger,
	}
}

// ExportHandler flattens the catalog and writes it.
// POST /api/export {scraped, destination?}
func (h *ExportHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req ExportRequest
	if err := DecodeJSON(w, r, h.validate, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	credential := ""
	if h.credentials != nil {
		token, err := h.credentials.Token(r.Context())
		switch {
		case err == nil:
			credential = token
		case !errors.Is(err, export.ErrNoCredential):
			h.logger.Warn().Err(err).Msg("Export credential unavailable")
		}
	}

	doc := assembler.BuildExportDocument(req.Scraped)
	location, err := h.writer.Write(r.Context(), doc, req.Destination, credential)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, export.ErrUnsupportedFormat) {
			status = http.StatusBadRequest
		}
		WriteError(w, status, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"location":       location,
		"rows":           len(doc.Rows),
		"modifierGroups": len(doc.ModifierGroups),
	})
}
