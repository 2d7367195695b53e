package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// setupTestManager creates a test Manager with a temporary database
func setupTestManager(t *testing.T) (*Manager, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "facet-auth-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "auth.db")
	logger := zerolog.Nop()

	m, err := NewManager(dbPath, 5*time.Minute, 100, logger)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create Manager: %v", err)
	}

	cleanup := func() {
		m.Close()
		os.RemoveAll(tmpDir)
	}

	return m, cleanup
}

// TestNewManager tests Manager creation
func TestNewManager(t *testing.T) {
	t.Run("valid creation", func(t *testing.T) {
		m, cleanup := setupTestManager(t)
		defer cleanup()

		if m == nil {
			t.Fatal("Manager should not be nil")
		}
		if m.db == nil {
			t.Error("Database connection should not be nil")
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		logger := zerolog.Nop()
		// Use a path that should fail (root directory, no permission)
		_, err := NewManager("/nonexistent/deeply/nested/path/that/should/fail/auth.db", time.Minute, 100, logger)
		if err == nil {
			t.Error("Expected error for invalid path")
		}
	})

	t.Run("cache config", func(t *testing.T) {
		tmpDir, _ := os.MkdirTemp("", "facet-auth-test-*")
		defer os.RemoveAll(tmpDir)

		dbPath := filepath.Join(tmpDir, "auth.db")
		logger := zerolog.Nop()

		m, err := NewManager(dbPath, 10*time.Second, 50, logger)
		if err != nil {
			t.Fatalf("failed to create Manager: %v", err)
		}
		defer m.Close()

		if m.cacheTTL != 10*time.Second {
			t.Errorf("cacheTTL = %v, want %v", m.cacheTTL, 10*time.Second)
		}
		if m.maxCacheSize != 50 {
			t.Errorf("maxCacheSize = %d, want %d", m.maxCacheSize, 50)
		}
	})
}

// TestCreateToken tests token creation
func TestCreateToken(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	t.Run("basic token creation", func(t *testing.T) {
		token, err := m.CreateToken("test-token", "Test description", "read,write", nil)
		if err != nil {
			t.Fatalf("CreateToken failed: %v", err)
		}
		if token == "" {
			t.Error("Token should not be empty")
		}
		// Token should be base64 encoded, ~43 chars for 32 bytes
		if len(token) < 40 {
			t.Errorf("Token length = %d, expected >= 40", len(token))
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := m.CreateToken("dup-token", "First", "read", nil)
		if err != nil {
			t.Fatalf("First CreateToken failed: %v", err)
		}

		_, err = m.CreateToken("dup-token", "Second", "read", nil)
		if err == nil {
			t.Error("Expected error for duplicate token name")
		}
	})

	t.Run("with expiration", func(t *testing.T) {
		expiresAt := time.Now().Add(24 * time.Hour)
		token, err := m.CreateToken("expiring-token", "Expires in 24h", "read", &expiresAt)
		if err != nil {
			t.Fatalf("CreateToken with expiration failed: %v", err)
		}
		if token == "" {
			t.Error("Token should not be empty")
		}
	})

	t.Run("default permissions", func(t *testing.T) {
		token, err := m.CreateToken("default-perms", "Default permissions", "", nil)
		if err != nil {
			t.Fatalf("CreateToken failed: %v", err)
		}

		info := m.VerifyToken(token)
		if info == nil {
			t.Fatal("Token verification failed")
		}

		hasRead := false
		hasWrite := false
		for _, p := range info.Permissions {
			if p == "read" {
				hasRead = true
			}
			if p == "write" {
				hasWrite = true
			}
		}
		if !hasRead || !hasWrite {
			t.Errorf("Default permissions should be read,write, got %v", info.Permissions)
		}
	})
}

// TestVerifyToken tests token verification
func TestVerifyToken(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	t.Run("valid token", func(t *testing.T) {
		token, _ := m.CreateToken("verify-test", "Test", "read,write", nil)

		info := m.VerifyToken(token)
		if info == nil {
			t.Fatal("VerifyToken returned nil for valid token")
		}
		if info.Name != "verify-test" {
			t.Errorf("Name = %s, want verify-test", info.Name)
		}
		if !info.Enabled {
			t.Error("Token should be enabled")
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		info := m.VerifyToken("invalid-token-12345")
		if info != nil {
			t.Error("VerifyToken should return nil for invalid token")
		}
	})

	t.Run("empty token", func(t *testing.T) {
		info := m.VerifyToken("")
		if info != nil {
			t.Error("VerifyToken should return nil for empty token")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		// Create token that expires immediately
		expiresAt := time.Now().Add(-1 * time.Second)
		token, _ := m.CreateToken("expired-token", "Already expired", "read", &expiresAt)

		info := m.VerifyToken(token)
		if info != nil {
			t.Error("VerifyToken should return nil for expired token")
		}
	})
}

// TestVerifyToken_Cache tests cache behavior
func TestVerifyToken_Cache(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	token, _ := m.CreateToken("cache-test", "Test", "read", nil)

	// First verification - cache miss
	m.cacheMu.RLock()
	initialMisses := m.cacheMisses
	m.cacheMu.RUnlock()

	info1 := m.VerifyToken(token)
	if info1 == nil {
		t.Fatal("First verification failed")
	}

	m.cacheMu.RLock()
	misses := m.cacheMisses
	m.cacheMu.RUnlock()
	if misses != initialMisses+1 {
		t.Error("Expected cache miss on first verification")
	}

	// Second verification - should be cache hit
	m.cacheMu.RLock()
	initialHits := m.cacheHits
	m.cacheMu.RUnlock()

	info2 := m.VerifyToken(token)
	if info2 == nil {
		t.Fatal("Second verification failed")
	}

	m.cacheMu.RLock()
	hits := m.cacheHits
	m.cacheMu.RUnlock()
	if hits != initialHits+1 {
		t.Error("Expected cache hit on second verification")
	}
}

// TestRevokeToken tests token revocation
func TestRevokeToken(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	token, _ := m.CreateToken("revoke-test", "Test", "read", nil)
	info := m.VerifyToken(token)
	if info == nil {
		t.Fatal("Initial verification failed")
	}

	err := m.RevokeToken(info.ID)
	if err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	// Token should no longer work
	if m.VerifyToken(token) != nil {
		t.Error("Revoked token should not be valid")
	}

	// Revoking an unknown ID should fail
	if err := m.RevokeToken(99999); err == nil {
		t.Error("Expected error for unknown token ID")
	}
}

// TestDeleteToken tests token deletion
func TestDeleteToken(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	token, _ := m.CreateToken("delete-test", "Test", "read", nil)
	info := m.VerifyToken(token)
	if info == nil {
		t.Fatal("Initial verification failed")
	}

	err := m.DeleteToken(info.ID)
	if err != nil {
		t.Fatalf("DeleteToken failed: %v", err)
	}

	// Token should no longer work
	if m.VerifyToken(token) != nil {
		t.Error("Deleted token should not be valid")
	}

	// Deleted token should not show up in listings
	tokens, err := m.ListTokens()
	if err != nil {
		t.Fatalf("ListTokens failed: %v", err)
	}
	for _, tok := range tokens {
		if tok.ID == info.ID {
			t.Error("Deleted token should not be listed")
		}
	}
}

// TestListTokens tests token listing
func TestListTokens(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	m.CreateToken("list-test-1", "First", "read", nil)
	m.CreateToken("list-test-2", "Second", "write", nil)
	m.CreateToken("list-test-3", "Third", "read,write,admin", nil)

	tokens, err := m.ListTokens()
	if err != nil {
		t.Fatalf("ListTokens failed: %v", err)
	}

	if len(tokens) != 3 {
		t.Errorf("ListTokens returned %d tokens, want 3", len(tokens))
	}

	for _, token := range tokens {
		if token.ID == 0 {
			t.Error("Token ID should not be 0")
		}
		if token.Name == "" {
			t.Error("Token name should not be empty")
		}
	}
}

// TestCacheStats tests cache statistics
func TestCacheStats(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	token, _ := m.CreateToken("stats-test", "Test", "read", nil)
	m.VerifyToken(token) // Cache miss
	m.VerifyToken(token) // Cache hit

	stats := m.CacheStats()

	if stats["cache_size"] == nil {
		t.Error("cache_size should be present in stats")
	}
	if stats["cache_hits"] == nil {
		t.Error("cache_hits should be present in stats")
	}
	if stats["cache_misses"] == nil {
		t.Error("cache_misses should be present in stats")
	}
	if stats["hit_rate_percent"] == nil {
		t.Error("hit_rate_percent should be present in stats")
	}
}

// TestInvalidateCache tests cache invalidation
func TestInvalidateCache(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	token, _ := m.CreateToken("invalidate-test", "Test", "read", nil)
	m.VerifyToken(token)

	m.cacheMu.RLock()
	cacheSize := len(m.cache)
	m.cacheMu.RUnlock()
	if cacheSize == 0 {
		t.Error("Cache should have at least one entry")
	}

	m.InvalidateCache()

	m.cacheMu.RLock()
	cacheSize = len(m.cache)
	m.cacheMu.RUnlock()
	if cacheSize != 0 {
		t.Errorf("Cache should be empty after invalidation, got %d entries", cacheSize)
	}
}

// TestEnsureBootstrapToken tests initial admin token creation
func TestEnsureBootstrapToken(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	// First call should create token
	token, err := m.EnsureBootstrapToken()
	if err != nil {
		t.Fatalf("EnsureBootstrapToken failed: %v", err)
	}
	if token == "" {
		t.Error("Should create initial token when no tokens exist")
	}

	// Verify token is admin
	info := m.VerifyToken(token)
	if info == nil {
		t.Fatal("Initial token verification failed")
	}
	hasAdmin := false
	for _, p := range info.Permissions {
		if p == "admin" {
			hasAdmin = true
		}
	}
	if !hasAdmin {
		t.Error("Initial token should have admin permission")
	}

	// Second call should return empty (tokens already exist)
	token2, err := m.EnsureBootstrapToken()
	if err != nil {
		t.Fatalf("Second EnsureBootstrapToken failed: %v", err)
	}
	if token2 != "" {
		t.Error("Should not create token when tokens already exist")
	}
}

// TestCacheEviction tests cache eviction when full
func TestCacheEviction(t *testing.T) {
	// Create manager with small cache
	tmpDir, _ := os.MkdirTemp("", "facet-auth-test-*")
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "auth.db")
	logger := zerolog.Nop()

	m, err := NewManager(dbPath, 5*time.Minute, 3, logger) // Max 3 entries
	if err != nil {
		t.Fatalf("failed to create Manager: %v", err)
	}
	defer m.Close()

	// Create and verify 4 tokens (should cause eviction)
	for i := 0; i < 4; i++ {
		token, _ := m.CreateToken("eviction-test-"+string(rune('a'+i)), "Test", "read", nil)
		m.VerifyToken(token)
	}

	m.cacheMu.RLock()
	evictions := m.cacheEvictions
	cacheSize := len(m.cache)
	m.cacheMu.RUnlock()

	if evictions == 0 {
		t.Error("Expected at least one cache eviction")
	}
	if cacheSize > 3 {
		t.Errorf("Cache size = %d, should not exceed max of 3", cacheSize)
	}
}
