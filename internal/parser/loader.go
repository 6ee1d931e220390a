package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"querybot/internal/models"
)

// LoadDirectory parses every supported file directly under dir. Individual
// file failures are warned and skipped; the load continues with the rest.
// Unsupported extensions are skipped silently.
func (p *Parser) LoadDirectory(dir string) ([]models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var docs []models.Document
	failed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !p.Supports(strings.ToLower(filepath.Ext(path))) {
			continue
		}
		parsed, err := p.Parse(path)
		if err != nil {
			failed++
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping file")
			continue
		}
		docs = append(docs, parsed...)
		log.Debug().Str("file", entry.Name()).Int("chunks", len(parsed)).Msg("Parsed file")
	}
	if failed > 0 {
		log.Warn().Int("failed", failed).Int("loaded", len(docs)).Msg("Directory load finished with failures")
	}
	return docs, nil
}
