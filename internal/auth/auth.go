// Package auth manages API tokens: bcrypt-hashed storage in a local SQLite
// database with an in-memory verification cache, plus the Fiber middleware
// that enforces them.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/mattn/go-sqlite3"
)

// TokenInfo is token metadata, never the token itself.
type TokenInfo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at,omitempty"`
	Enabled     bool      `json:"enabled"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Can reports whether the token grants the permission. A token holding
// "admin" passes every check.
func (t *TokenInfo) Can(permission string) bool {
	for _, p := range t.Permissions {
		p = strings.TrimSpace(p)
		if p == permission || p == "admin" {
			return true
		}
	}
	return false
}

type cacheEntry struct {
	info      *TokenInfo
	expiresAt time.Time
}

// Manager stores and verifies API tokens. Verification results are cached by
// the sha256 of the presented token so the bcrypt comparison only runs on
// cache misses.
type Manager struct {
	db           *sql.DB
	dbPath       string
	cacheTTL     time.Duration
	maxCacheSize int

	cacheMu        sync.RWMutex
	cache          map[string]cacheEntry
	cacheHits      int64
	cacheMisses    int64
	cacheEvictions int64

	cleanupDone chan struct{}
	logger      zerolog.Logger
}

// NewManager opens (or creates) the token database at dbPath.
func NewManager(dbPath string, cacheTTL time.Duration, maxCacheSize int, logger zerolog.Logger) (*Manager, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open auth database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	m := &Manager{
		db:           db,
		dbPath:       dbPath,
		cacheTTL:     cacheTTL,
		maxCacheSize: maxCacheSize,
		cache:        make(map[string]cacheEntry),
		cleanupDone:  make(chan struct{}),
		logger:       logger.With().Str("component", "auth").Logger(),
	}

	if err := m.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	go m.cleanupLoop()

	m.logger.Info().
		Str("db_path", dbPath).
		Dur("cache_ttl", cacheTTL).
		Int("max_cache_size", maxCacheSize).
		Msg("Auth manager initialized")

	return m, nil
}

func (m *Manager) initDB() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS api_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			token_hash TEXT NOT NULL,
			description TEXT,
			permissions TEXT DEFAULT 'read,write',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_used_at TIMESTAMP,
			expires_at TIMESTAMP,
			enabled INTEGER DEFAULT 1
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create api_tokens table: %w", err)
	}

	_, err = m.db.Exec(`CREATE INDEX IF NOT EXISTS idx_api_tokens_enabled ON api_tokens(enabled)`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func (m *Manager) cleanupLoop() {
	interval := m.cacheTTL
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpiredCache()
		case <-m.cleanupDone:
			return
		}
	}
}

func (m *Manager) cleanupExpiredCache() {
	now := time.Now()
	var expired int

	m.cacheMu.Lock()
	for key, entry := range m.cache {
		if now.After(entry.expiresAt) {
			delete(m.cache, key)
			expired++
		}
	}
	m.cacheMu.Unlock()

	if expired > 0 {
		m.logger.Debug().Int("expired_count", expired).Msg("Cleaned up expired cache entries")
	}
}

// cacheKey hashes the presented token for map lookup, so plain tokens never
// sit in memory as keys.
func cacheKey(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// CreateToken stores a new named token and returns its plain value, the only
// time the value is ever available.
func (m *Manager) CreateToken(name, description, permissions string, expiresAt *time.Time) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}

	if permissions == "" {
		permissions = "read,write"
	}

	var expiresAtVal interface{}
	if expiresAt != nil {
		expiresAtVal = *expiresAt
	}

	_, err = m.db.Exec(`
		INSERT INTO api_tokens (name, token_hash, description, permissions, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, name, string(hash), description, permissions, expiresAtVal)

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", fmt.Errorf("token with name '%s' already exists", name)
		}
		return "", fmt.Errorf("failed to create token: %w", err)
	}

	m.logger.Info().
		Str("name", name).
		Str("permissions", permissions).
		Msg("Created API token")

	return token, nil
}

// VerifyToken returns the token's metadata when it is valid, enabled and
// unexpired, nil otherwise.
func (m *Manager) VerifyToken(token string) *TokenInfo {
	if token == "" {
		return nil
	}

	key := cacheKey(token)
	now := time.Now()

	m.cacheMu.Lock()
	if entry, ok := m.cache[key]; ok && now.Before(entry.expiresAt) {
		m.cacheHits++
		m.cacheMu.Unlock()
		return entry.info
	}
	m.cacheMisses++
	m.cacheMu.Unlock()

	rows, err := m.db.Query(`
		SELECT id, name, token_hash, description, permissions, created_at, last_used_at, expires_at, enabled
		FROM api_tokens WHERE enabled = 1
	`)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to query tokens")
		return nil
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id          int64
			name        string
			tokenHash   string
			description sql.NullString
			permissions sql.NullString
			createdAt   time.Time
			lastUsedAt  sql.NullTime
			expiresAt   sql.NullTime
			enabled     bool
		)

		if err := rows.Scan(&id, &name, &tokenHash, &description, &permissions, &createdAt, &lastUsedAt, &expiresAt, &enabled); err != nil {
			m.logger.Error().Err(err).Msg("Failed to scan token row")
			continue
		}

		if bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
			continue
		}

		if expiresAt.Valid && now.After(expiresAt.Time) {
			m.logger.Warn().Str("name", name).Msg("Token has expired")
			return nil
		}

		// Fire and forget; last_used_at is informational.
		go func(tokenID int64) {
			_, err := m.db.Exec("UPDATE api_tokens SET last_used_at = ? WHERE id = ?", now, tokenID)
			if err != nil {
				m.logger.Error().Err(err).Int64("token_id", tokenID).Msg("Failed to update last_used_at")
			}
		}(id)

		info := &TokenInfo{
			ID:          id,
			Name:        name,
			Description: description.String,
			Permissions: strings.Split(permissions.String, ","),
			CreatedAt:   createdAt,
			Enabled:     enabled,
		}
		if lastUsedAt.Valid {
			info.LastUsedAt = lastUsedAt.Time
		}
		if expiresAt.Valid {
			info.ExpiresAt = expiresAt.Time
		}

		m.cacheMu.Lock()
		if len(m.cache) >= m.maxCacheSize {
			var oldestKey string
			var oldestTime time.Time
			for k, v := range m.cache {
				if oldestKey == "" || v.expiresAt.Before(oldestTime) {
					oldestKey = k
					oldestTime = v.expiresAt
				}
			}
			if oldestKey != "" {
				delete(m.cache, oldestKey)
				m.cacheEvictions++
			}
		}
		m.cache[key] = cacheEntry{
			info:      info,
			expiresAt: now.Add(m.cacheTTL),
		}
		m.cacheMu.Unlock()

		return info
	}

	m.logger.Debug().Msg("Authentication failed: invalid token")
	return nil
}

// ListTokens returns all tokens without their hashes.
func (m *Manager) ListTokens() ([]TokenInfo, error) {
	rows, err := m.db.Query(`
		SELECT id, name, description, permissions, created_at, last_used_at, expires_at, enabled
		FROM api_tokens
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []TokenInfo
	for rows.Next() {
		var (
			id          int64
			name        string
			description sql.NullString
			permissions sql.NullString
			createdAt   time.Time
			lastUsedAt  sql.NullTime
			expiresAt   sql.NullTime
			enabled     bool
		)

		if err := rows.Scan(&id, &name, &description, &permissions, &createdAt, &lastUsedAt, &expiresAt, &enabled); err != nil {
			return nil, err
		}

		info := TokenInfo{
			ID:          id,
			Name:        name,
			Description: description.String,
			Permissions: []string{"read", "write"},
			CreatedAt:   createdAt,
			Enabled:     enabled,
		}
		if permissions.Valid && permissions.String != "" {
			info.Permissions = strings.Split(permissions.String, ",")
		}
		if lastUsedAt.Valid {
			info.LastUsedAt = lastUsedAt.Time
		}
		if expiresAt.Valid {
			info.ExpiresAt = expiresAt.Time
		}

		tokens = append(tokens, info)
	}

	return tokens, rows.Err()
}

// RevokeToken disables a token without deleting its record.
func (m *Manager) RevokeToken(id int64) error {
	result, err := m.db.Exec("UPDATE api_tokens SET enabled = 0 WHERE id = ?", id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.New("token not found")
	}

	m.InvalidateCache()
	m.logger.Info().Int64("token_id", id).Msg("Revoked API token")
	return nil
}

// DeleteToken removes a token permanently.
func (m *Manager) DeleteToken(id int64) error {
	result, err := m.db.Exec("DELETE FROM api_tokens WHERE id = ?", id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.New("token not found")
	}

	m.InvalidateCache()
	m.logger.Info().Int64("token_id", id).Msg("Deleted API token")
	return nil
}

// EnsureBootstrapToken creates the first admin token when the database holds
// none. The returned value is empty if tokens already exist; the caller is
// responsible for showing the token once.
func (m *Manager) EnsureBootstrapToken() (string, error) {
	var count int
	if err := m.db.QueryRow("SELECT COUNT(*) FROM api_tokens").Scan(&count); err != nil {
		return "", err
	}

	if count > 0 {
		return "", nil
	}

	m.logger.Info().Msg("First run detected, creating initial admin token")

	token, err := m.CreateToken("admin", "Initial admin token (auto-generated on first run)", "read,write,delete,admin", nil)
	if err != nil {
		// Another process won the race.
		if strings.Contains(err.Error(), "already exists") {
			return "", nil
		}
		return "", err
	}

	return token, nil
}

// InvalidateCache clears the verification cache.
func (m *Manager) InvalidateCache() {
	m.cacheMu.Lock()
	cleared := len(m.cache)
	m.cache = make(map[string]cacheEntry)
	m.cacheMu.Unlock()

	m.logger.Info().Int("cleared", cleared).Msg("Token cache invalidated")
}

// CacheStats reports verification cache counters for the stats endpoint.
func (m *Manager) CacheStats() map[string]interface{} {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	total := m.cacheHits + m.cacheMisses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(m.cacheHits) / float64(total) * 100
	}

	return map[string]interface{}{
		"cache_size":        len(m.cache),
		"max_cache_size":    m.maxCacheSize,
		"cache_ttl_seconds": m.cacheTTL.Seconds(),
		"cache_hits":        m.cacheHits,
		"cache_misses":      m.cacheMisses,
		"cache_evictions":   m.cacheEvictions,
		"hit_rate_percent":  hitRate,
	}
}

// Close stops the cleanup loop and closes the database.
func (m *Manager) Close() error {
	close(m.cleanupDone)
	return m.db.Close()
}
