package interfaces

import (
	"context"

	"github.com/ternarybob/harvester/internal/models"
)

// ExportWriter persists a scraped structure to a destination.
// Implementations report the location written.
type ExportWriter interface {
	Write(ctx context.Context, doc *models.ExportDocument, destination string, credential string) (string, error)
}

// CredentialProvider supplies an access token for export destinations.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}
