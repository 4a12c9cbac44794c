package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const storeDBName = "pathfinder.db"

// EncryptedStore implements domain.RunHistoryStore and domain.SecretStore
// on a SQLCipher database. Reports are stored as JSON next to the columns
// needed for listing.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted store in dataDir.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// A wrong key only surfaces on first access.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *EncryptedStore) createTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		guide_url TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		success INTEGER NOT NULL,
		report TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS runs_started ON runs (started_at DESC);

	CREATE TABLE IF NOT EXISTS secrets (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`)
	return err
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// --- domain.RunHistoryStore implementation ---

// SaveRun inserts or replaces a report.
func (s *EncryptedStore) SaveRun(report domain.RunReport) error {
	if report.ID == "" {
		return errors.New("run report has no id")
	}
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO runs (id, guide_url, started_at, finished_at, success, report)
		VALUES (?, ?, ?, ?, ?, ?)`,
		report.ID, report.GuideURL,
		report.StartedAt.UnixNano(), report.FinishedAt.UnixNano(),
		boolToInt(report.Summary.Success), string(blob),
	)
	return err
}

// GetRun returns a report by id, or domain.ErrNotFound.
func (s *EncryptedStore) GetRun(id string) (*domain.RunReport, error) {
	var blob string
	err := s.db.QueryRow(`SELECT report FROM runs WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeReport(blob)
}

// ListRuns returns the newest reports first. limit <= 0 means all.
func (s *EncryptedStore) ListRuns(limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.Query(`SELECT report FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunReport
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		r, err := decodeReport(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// LastRun returns the newest report for guideURL, or domain.ErrNotFound.
func (s *EncryptedStore) LastRun(guideURL string) (*domain.RunReport, error) {
	var blob string
	err := s.db.QueryRow(`SELECT report FROM runs WHERE guide_url = ? ORDER BY started_at DESC LIMIT 1`,
		guideURL).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("guide %q: %w", guideURL, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeReport(blob)
}

// PruneRuns deletes reports that started before cutoff and returns how many were removed.
func (s *EncryptedStore) PruneRuns(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func decodeReport(blob string) (*domain.RunReport, error) {
	var r domain.RunReport
	if err := json.Unmarshal([]byte(blob), &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- domain.SecretStore implementation ---

// GetSecret retrieves a secret by key, or domain.ErrNotFound.
func (s *EncryptedStore) GetSecret(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("secret %q: %w", key, domain.ErrNotFound)
	}
	return value, err
}

// SetSecret stores a secret.
func (s *EncryptedStore) SetSecret(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO secrets (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	return err
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ domain.RunHistoryStore = (*EncryptedStore)(nil)
	_ domain.SecretStore     = (*EncryptedStore)(nil)
)
