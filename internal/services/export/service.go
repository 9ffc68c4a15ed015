// -----------------------------------------------------------------------
// Export service - writes the item set to timestamped CSV/JSON files
// -----------------------------------------------------------------------

package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// csvHeader is the stable column order; downstream spreadsheets key on it.
var csvHeader = []string{
	"name", "detail_url", "address", "phone", "website",
	"emails", "rating", "reviews", "meta_line", "collected_at",
}

// Service serializes the stored item set to disk.
type Service struct {
	store  interfaces.ItemStorage
	dir    string
	logger arbor.ILogger
}

// NewService creates an export service writing into cfg.Dir.
func NewService(store interfaces.ItemStorage, cfg common.ExportConfig, logger arbor.ILogger) *Service {
	return &Service{store: store, dir: cfg.Dir, logger: logger}
}

// ExportCSV writes every stored item to a timestamped CSV file and returns
// its path.
func (s *Service) ExportCSV(ctx context.Context) (string, error) {
	items, err := s.loadItems(ctx)
	if err != nil {
		return "", err
	}

	path := s.filePath("csv")
	file, err := s.createFile(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, item := range items {
		if err := writer.Write(csvRow(item)); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}

	s.logger.Info().Int("items", len(items)).Str("path", path).Msg("CSV export complete")
	return path, nil
}

// ExportJSON writes every stored item to a timestamped JSON file and
// returns its path.
func (s *Service) ExportJSON(ctx context.Context) (string, error) {
	items, err := s.loadItems(ctx)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal items: %w", err)
	}

	path := s.filePath("json")
	file, err := s.createFile(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return "", fmt.Errorf("failed to write JSON export: %w", err)
	}

	s.logger.Info().Int("items", len(items)).Str("path", path).Msg("JSON export complete")
	return path, nil
}

func (s *Service) loadItems(ctx context.Context) ([]models.CaptureItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}

	// Listings with no website are often unclaimed businesses, the best
	// outreach targets. Surface the count alongside the export.
	gold := 0
	for _, item := range items {
		if item.Website == "" {
			gold++
		}
	}
	if gold > 0 {
		s.logger.Info().Int("count", gold).Msg("Export set contains listings without a website")
	}

	return items, nil
}

func (s *Service) filePath(ext string) string {
	name := fmt.Sprintf("prospector-items-%s.%s", time.Now().Format("20060102-150405"), ext)
	return filepath.Join(s.dir, name)
}

func (s *Service) createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	return file, nil
}

func csvRow(item models.CaptureItem) []string {
	var collected string
	if !item.CollectedAt.IsZero() {
		collected = item.CollectedAt.Format(time.RFC3339)
	}
	return []string{
		item.Name,
		item.DetailURL,
		item.Address,
		item.Phone,
		item.Website,
		item.EmailList(),
		strconv.FormatFloat(item.Rating, 'f', -1, 64),
		strconv.Itoa(item.Reviews),
		item.MetaLine,
		collected,
	}
}
