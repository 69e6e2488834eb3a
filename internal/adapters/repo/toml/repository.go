package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	HistoryPathKey    = "history.path"
	MaxEntriesKey     = "history.max_entries"
	historyFileMode   = 0o600
	historyDirMode    = 0o700
	historyConfigDir  = ".giveaway"
	historyConfigFile = "history.toml"
	tempFilePattern   = ".history-*.toml.tmp"
)

// Repository stores sent gifts in a TOML file. Writes replace the file
// atomically; repositories pointing at the same path share one lock.
type Repository struct {
	historyPath string
	maxEntries  int
	mu          *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.TransferHistory = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	historyPath := cfg.GetString(HistoryPathKey)
	if historyPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		historyPath = filepath.Join(homeDir, historyConfigDir, historyConfigFile)
	}

	historyPath, err := normalizeHistoryPath(historyPath)
	if err != nil {
		return nil, err
	}

	maxEntries := cfg.GetInt(MaxEntriesKey)
	if maxEntries < 0 {
		return nil, fmt.Errorf("%s must not be negative", MaxEntriesKey)
	}

	return &Repository{historyPath: historyPath, maxEntries: maxEntries, mu: lockForPath(historyPath)}, nil
}

func (r *Repository) Path() string {
	return r.historyPath
}

// Append adds a record, replacing an existing one with the same id. When a
// retention limit is set the oldest records are dropped first.
func (r *Repository) Append(ctx context.Context, record domain.TransferRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.ID == "" {
		return errors.New("transfer record id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := toSchema(record)
	updated := false
	for i := range file.Transfers {
		if file.Transfers[i].ID == encoded.ID {
			file.Transfers[i] = encoded
			updated = true
			break
		}
	}
	if !updated {
		file.Transfers = append(file.Transfers, encoded)
	}

	if r.maxEntries > 0 && len(file.Transfers) > r.maxEntries {
		file.Transfers = file.Transfers[len(file.Transfers)-r.maxEntries:]
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

// List returns every record, newest first.
func (r *Repository) List(ctx context.Context) ([]domain.TransferRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	records := make([]domain.TransferRecord, 0, len(file.Transfers))
	for _, entry := range file.Transfers {
		records = append(records, fromSchema(entry))
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SentAt.After(records[j].SentAt)
	})

	return records, nil
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.historyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{Version: currentSchemaVersion}, nil
		}
		return fileSchema{}, fmt.Errorf("read history file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode history file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func normalizeHistoryPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve history path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.historyPath), historyDirMode); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode history file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.historyPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp history file: %w", err)
	}

	if err := tempFile.Chmod(historyFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp history file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp history file: %w", err)
	}

	if err := os.Rename(tempName, r.historyPath); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}

	cleanup = false

	return nil
}

func toSchema(record domain.TransferRecord) transferSchema {
	return transferSchema{
		ID:       record.ID,
		ItemID:   string(record.ItemID),
		ItemName: record.ItemName,
		PeerID:   string(record.PeerID),
		PeerName: record.PeerName,
		SentAt:   formatTime(record.SentAt),
	}
}

func fromSchema(entry transferSchema) domain.TransferRecord {
	return domain.TransferRecord{
		ID:       entry.ID,
		ItemID:   domain.ItemID(entry.ItemID),
		ItemName: entry.ItemName,
		PeerID:   domain.PeerID(entry.PeerID),
		PeerName: entry.PeerName,
		SentAt:   parseTime(entry.SentAt),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339)
}
