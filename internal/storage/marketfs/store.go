// Package marketfs implements file-based storage for OHLCV bars.
// Each symbol is one JSON file holding its bars in date order.
package marketfs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/interfaces"
	"github.com/bobmcallan/vire-screener/internal/models"
)

// Store provides file-based JSON storage for bars.
type Store struct {
	barsDir string
	logger  *common.Logger
	mu      sync.RWMutex
}

// Compile-time check
var _ interfaces.BarStore = (*Store)(nil)

// NewBarStore creates a new bar file store rooted at path.
func NewBarStore(logger *common.Logger, path string) (*Store, error) {
	barsDir := filepath.Join(path, "bars")
	if err := os.MkdirAll(barsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bar store path %s: %w", barsDir, err)
	}

	logger.Info().Str("path", path).Msg("MarketFS bar store opened")
	return &Store{
		barsDir: barsDir,
		logger:  logger,
	}, nil
}

// GetBars returns bars for symbols, or for every stored symbol when symbols is empty.
// Unknown symbols are skipped.
func (s *Store) GetBars(_ context.Context, symbols []string) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(symbols) == 0 {
		keys, err := listKeys(s.barsDir)
		if err != nil {
			return nil, err
		}
		symbols = keys
	}

	var out []models.Bar
	for _, sym := range symbols {
		var bars []models.Bar
		if err := readJSON(s.barsDir, sym, &bars); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		out = append(out, bars...)
	}
	return out, nil
}

// SaveBars merges bars into each symbol's file; a repeated date replaces the stored bar.
func (s *Store) SaveBars(_ context.Context, bars []models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySymbol := make(map[string][]models.Bar)
	for _, b := range bars {
		if b.Symbol == "" {
			return fmt.Errorf("bar on %s has no symbol", b.Date.Format(models.DateLayout))
		}
		bySymbol[b.Symbol] = append(bySymbol[b.Symbol], b)
	}

	for sym, incoming := range bySymbol {
		var existing []models.Bar
		if err := readJSON(s.barsDir, sym, &existing); err != nil && !os.IsNotExist(err) {
			return err
		}

		byDate := make(map[string]models.Bar, len(existing)+len(incoming))
		for _, b := range existing {
			byDate[b.Date.Format(models.DateLayout)] = b
		}
		for _, b := range incoming {
			byDate[b.Date.Format(models.DateLayout)] = b
		}

		merged := make([]models.Bar, 0, len(byDate))
		for _, b := range byDate {
			merged = append(merged, b)
		}
		sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })

		if err := writeJSON(s.barsDir, sym, merged); err != nil {
			return fmt.Errorf("failed to save bars for %s: %w", sym, err)
		}
		s.logger.Debug().Str("symbol", sym).Int("bars", len(merged)).Msg("Bars saved")
	}
	return nil
}

// ListSymbols returns the stored symbols, sorted
func (s *Store) ListSymbols(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys, err := listKeys(s.barsDir)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteBars removes the files of the given symbols, or every file when
// symbols is empty, and returns how many symbols were removed.
func (s *Store) DeleteBars(_ context.Context, symbols []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(symbols) == 0 {
		return purgeDir(s.barsDir)
	}
	removed := 0
	for _, sym := range symbols {
		err := os.Remove(filePath(s.barsDir, sym))
		switch {
		case err == nil:
			removed++
		case os.IsNotExist(err):
		default:
			return removed, fmt.Errorf("failed to delete bars for %s: %w", sym, err)
		}
	}
	s.logger.Debug().Int("symbols", removed).Msg("Bars deleted")
	return removed, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// LoadFile reads a flat JSON array of bars, as accepted by the screen endpoints.
func LoadFile(path string) ([]models.Bar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var bars []models.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return bars, nil
}

// --- helpers ---

func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key)
}

func filePath(dir, key string) string {
	return filepath.Join(dir, sanitizeKey(key)+".json")
}

// readJSON returns an os.IsNotExist error when the key is missing.
func readJSON(dir, key string, dest interface{}) error {
	path := filePath(dir, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("'%s' is empty", key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(dir, key string, data interface{}) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	target := filePath(dir, key)
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	jsonData = append(jsonData, '\n')

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(jsonData); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func listKeys(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".tmp-") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	return keys, nil
}

func purgeDir(dir string) (int, error) {
	keys, err := listKeys(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, key := range keys {
		if err := os.Remove(filePath(dir, key)); err != nil && !os.IsNotExist(err) {
			return count, fmt.Errorf("failed to remove %s: %w", key, err)
		}
		count++
	}
	return count, nil
}
