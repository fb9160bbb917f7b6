package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/models"
)

func sampleDocument() *models.ExportDocument {
	price := 9.5
	upcharge := 1.5
	limit := 1
	return &models.ExportDocument{
		Store: "Luna Kitchen",
		Rows: []*models.ExportRow{
			{Category: "Mains", Title: "Burger", Price: &price, ModifierGroups: []string{"Size"}},
		},
		ModifierGroups: []*models.ModifierGroup{
			{Key: "size", Title: "Size", Requirement: models.RequirementRequired, Max: &limit,
				Options: []*models.ModifierOption{{Title: "Large", Upcharge: &upcharge}}},
		},
	}
}

func newTestWriter(t *testing.T) *FileWriter {
	t.Helper()
	w := NewFileWriter(&common.ExportConfig{Dir: t.TempDir()}, arbor.NewLogger())
	w.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }
	return w
}

func TestFileWriter_JSON(t *testing.T) {
	w := newTestWriter(t)

	path, err := w.Write(context.Background(), sampleDocument(), "menu.json", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.dir, "menu.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got models.ExportDocument
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Luna Kitchen", got.Store)
	require.Len(t, got.ModifierGroups, 1)
	assert.Nil(t, got.ModifierGroups[0].Min)
	assert.Equal(t, 1, *got.ModifierGroups[0].Max)
}

func TestFileWriter_YAMLByExtension(t *testing.T) {
	w := newTestWriter(t)

	path, err := w.Write(context.Background(), sampleDocument(), "exports/menu.yml", "token")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.dir, "menu.yml"), path, "destination cannot leave the export directory")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "Luna Kitchen", got["store"])
}

func TestFileWriter_DerivedName(t *testing.T) {
	w := newTestWriter(t)

	path, err := w.Write(context.Background(), sampleDocument(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "luna-kitchen-20260301-123000.json", filepath.Base(path))
}

func TestFileWriter_UnsupportedExtension(t *testing.T) {
	w := newTestWriter(t)

	_, err := w.Write(context.Background(), sampleDocument(), "menu.csv", "")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) { return nil, errors.New("refresh denied") }

func TestStaticProvider(t *testing.T) {
	token, err := NewStaticProvider("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = NewStaticProvider("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestTokenSourceProvider_Errors(t *testing.T) {
	_, err := NewTokenSourceProvider(failingSource{}).Token(context.Background())
	assert.ErrorContains(t, err, "refresh denied")

	expired := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Hour)})
	_, err = NewTokenSourceProvider(expired).Token(context.Background())
	assert.Error(t, err)
}
