// Package export writes assembled catalogs to local files and supplies
// credentials for remote export destinations.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
)

// ErrUnsupportedFormat is returned for destinations with an unknown extension
var ErrUnsupportedFormat = errors.New("unsupported export format")

var slugRx = regexp.MustCompile(`[^a-z0-9]+`)

// FileWriter writes export documents below a directory, as JSON or YAML
// depending on the destination extension.
type FileWriter struct {
	dir    string
	format string
	now    func() time.Time
	logger arbor.ILogger
}

var _ interfaces.ExportWriter = (*FileWriter)(nil)

// NewFileWriter creates a writer from export configuration
func NewFileWriter(config *common.ExportConfig, logger arbor.ILogger) *FileWriter {
	format := strings.ToLower(config.Format)
	if format == "" {
		format = "json"
	}
	return &FileWriter{
		dir:    config.Dir,
		format: format,
		now:    time.Now,
		logger: logger,
	}
}

// Write stores doc under destination, a file name relative to the export
// directory. An empty destination derives a name from the store. Local files
// need no credential.
func (w *FileWriter) Write(ctx context.Context, doc *models.ExportDocument, destination string, credential string) (string, error) {
	if doc == nil {
		return "", errors.New("nothing to export")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := w.fileName(doc, destination)
	data, err := encode(doc, filepath.Ext(name))
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}

	w.logger.Info().
		Str("path", path).
		Int("rows", len(doc.Rows)).
		Int("modifier_groups", len(doc.ModifierGroups)).
		Bool("credential", credential != "").
		Msg("Export written")
	return path, nil
}

// fileName keeps only the base name of destination and adds the default
// extension when it has none
func (w *FileWriter) fileName(doc *models.ExportDocument, destination string) string {
	name := filepath.Base(strings.TrimSpace(destination))
	if name == "." || name == string(filepath.Separator) || name == "" {
		slug := strings.Trim(slugRx.ReplaceAllString(strings.ToLower(doc.Store), "-"), "-")
		if slug == "" {
			slug = "catalog"
		}
		name = fmt.Sprintf("%s-%s", slug, w.now().UTC().Format("20060102-150405"))
	}
	if filepath.Ext(name) == "" {
		name += "." + w.format
	}
	return name
}

func encode(doc *models.ExportDocument, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".json":
		return json.MarshalIndent(doc, "", "  ")
	case ".yaml", ".yml":
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
