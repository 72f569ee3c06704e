package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for profiles, thread messages,
// and documents. It is the durable side of the profile-store and
// message-store boundaries; all in-memory state lives in the runtime layer.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "enquiro.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only structured queries
// issued by the tool layer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Profiles ---

// UpsertProfile inserts or replaces the profile row for p.UserID.
// There is no delete path; account removal is an external concern.
func (s *Store) UpsertProfile(p ProfileRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO profiles (user_id, role, tone_score, verbosity_score, technology_interest, domain_interest, recent_queries, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			role = excluded.role,
			tone_score = excluded.tone_score,
			verbosity_score = excluded.verbosity_score,
			technology_interest = excluded.technology_interest,
			domain_interest = excluded.domain_interest,
			recent_queries = excluded.recent_queries,
			updated_at = excluded.updated_at`,
		p.UserID, p.Role, p.ToneScore, p.VerbosityScore, p.TechnologyInterest,
		p.DomainInterest, p.RecentQueries, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetProfile loads the profile row for userID. Returns ErrNotFound when absent.
func (s *Store) GetProfile(userID string) (ProfileRecord, error) {
	var p ProfileRecord
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT user_id, role, tone_score, verbosity_score, technology_interest, domain_interest, recent_queries, updated_at
		FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Role, &p.ToneScore, &p.VerbosityScore, &p.TechnologyInterest, &p.DomainInterest, &p.RecentQueries, &updatedAt)
	if err == sql.ErrNoRows {
		return ProfileRecord{}, ErrNotFound
	}
	if err != nil {
		return ProfileRecord{}, err
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return ProfileRecord{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	p.UpdatedAt = t
	return p, nil
}

// GetProfileRole returns only the stored role for userID.
// Returns ErrNotFound when no profile row exists.
func (s *Store) GetProfileRole(userID string) (string, error) {
	var role string
	err := s.db.QueryRow("SELECT role FROM profiles WHERE user_id = ?", userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return role, err
}

// CountProfiles returns the number of profile rows. Used by tests and status.
func (s *Store) CountProfiles() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM profiles").Scan(&n)
	return n, err
}

// --- Messages ---

// AppendMessage persists one thread message. CreatedAt defaults to now.
func (s *Store) AppendMessage(m Message) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO messages (id, thread_id, user_id, role, content, file_name, file_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ThreadID, m.UserID, m.Role, m.Content, m.FileName, m.FilePath,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RecentMessages returns up to limit messages for threadID, oldest first.
// Insertion order breaks timestamp ties so a thread window rehydrates in
// arrival order.
func (s *Store) RecentMessages(threadID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, thread_id, user_id, role, content, file_name, file_path, created_at
		FROM messages WHERE thread_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, threadID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.UserID, &m.Role, &m.Content, &m.FileName, &m.FilePath, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.CreatedAt = t
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first into conversation order.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

// --- Documents ---

func (s *Store) SaveDocument(doc Document) error {
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, title, content, source, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, doc.Source, createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	var d Document
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, title, content, source, created_at
		FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.Content, &d.Source, &createdAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

func (s *Store) ListDocuments(limit int) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, title, content, source, created_at
		FROM documents ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Source, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		d.CreatedAt = t
		results = append(results, d)
	}
	return results, rows.Err()
}
