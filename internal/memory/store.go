// Package memory persists user profiles and attachment descriptions.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"

	"phasebot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.ProfileStore and domain.DescriptionCache.
// Every write goes to SQLite before the in-process cache is updated, so a
// restart never loses an acknowledged write.
type SQLiteStore struct {
	db     *sql.DB
	cache  *cache.Cache
	logger *slog.Logger
}

var (
	_ domain.ProfileStore     = (*SQLiteStore)(nil)
	_ domain.DescriptionCache = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// pending migrations. cacheTTL bounds how long a read stays in memory;
// zero keeps entries until the process exits.
func NewSQLiteStore(dbPath string, cacheTTL time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	ttl := cache.NoExpiration
	cleanup := time.Duration(0)
	if cacheTTL > 0 {
		ttl = cacheTTL
		cleanup = 2 * cacheTTL
	}

	return &SQLiteStore{
		db:     db,
		cache:  cache.New(ttl, cleanup),
		logger: logger,
	}, nil
}

func profileKey(id string) string      { return "profile:" + id }
func descriptionKey(loc string) string { return "description:" + loc }

// GetProfile returns the stored profile or (nil, nil) when none exists.
// The caller owns the returned copy.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if v, ok := s.cache.Get(profileKey(userID)); ok {
		return v.(*domain.Profile).Clone(), nil
	}

	p, err := scanProfile(s.db.QueryRowContext(ctx,
		`SELECT id, platform, mention_tag, username, real_name, title, team, status, is_bot, bio, notes, audience, updated_at
		 FROM profiles WHERE id = ?`, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	s.cache.Set(profileKey(userID), p.Clone(), cache.DefaultExpiration)
	return p, nil
}

// SaveProfile upserts the whole profile record.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p *domain.Profile) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("save profile: missing id")
	}
	notes := p.Notes
	if notes == nil {
		notes = []string{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}
	p.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, platform, mention_tag, username, real_name, title, team, status, is_bot, bio, notes, audience, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			platform=excluded.platform, mention_tag=excluded.mention_tag, username=excluded.username,
			real_name=excluded.real_name, title=excluded.title, team=excluded.team, status=excluded.status,
			is_bot=excluded.is_bot, bio=excluded.bio, notes=excluded.notes, audience=excluded.audience,
			updated_at=excluded.updated_at`,
		p.ID, string(p.Platform), p.MentionTag, p.Username, p.RealName, p.Title, p.Team, p.Status,
		p.IsBot, p.Bio, string(notesJSON), p.Audience, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.ID, err)
	}
	s.cache.Set(profileKey(p.ID), p.Clone(), cache.DefaultExpiration)
	return nil
}

// ListProfiles returns the most recently updated profiles first.
func (s *SQLiteStore) ListProfiles(ctx context.Context, limit int) ([]*domain.Profile, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform, mention_tag, username, real_name, title, team, status, is_bot, bio, notes, audience, updated_at
		 FROM profiles ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*domain.Profile, error) {
	var (
		p        domain.Profile
		platform string
		notes    string
		team     sql.NullString
	)
	if err := row.Scan(&p.ID, &platform, &p.MentionTag, &p.Username, &p.RealName, &p.Title, &team,
		&p.Status, &p.IsBot, &p.Bio, &notes, &p.Audience, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Platform = domain.Platform(platform)
	p.Team = team.String
	if notes != "" {
		if err := json.Unmarshal([]byte(notes), &p.Notes); err != nil {
			return nil, fmt.Errorf("decode notes for %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

// GetDescription looks up a cached attachment description by locator.
func (s *SQLiteStore) GetDescription(ctx context.Context, locator string) (string, bool, error) {
	if v, ok := s.cache.Get(descriptionKey(locator)); ok {
		return v.(string), true, nil
	}
	var desc string
	err := s.db.QueryRowContext(ctx,
		`SELECT description FROM descriptions WHERE locator = ?`, locator,
	).Scan(&desc)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get description: %w", err)
	}
	s.cache.Set(descriptionKey(locator), desc, cache.DefaultExpiration)
	return desc, true, nil
}

// PutDescription stores desc under locator, replacing any previous value.
func (s *SQLiteStore) PutDescription(ctx context.Context, locator, desc string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO descriptions (locator, description, created_at) VALUES (?, ?, ?)`,
		locator, desc, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("put description: %w", err)
	}
	s.cache.Set(descriptionKey(locator), desc, cache.DefaultExpiration)
	return nil
}

// CountDescriptions returns how many descriptions are stored.
func (s *SQLiteStore) CountDescriptions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM descriptions`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	s.cache.Flush()
	return s.db.Close()
}
