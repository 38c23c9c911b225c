package services

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/maheshchichkoti/email-archiver/internal/database/models"
	"golang.org/x/oauth2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// Create a temporary database file
	tmpFile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()

	// Open database
	db, err := gorm.Open(sqlite.Open(tmpFile.Name()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to open database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.Credential{},
		&models.Message{},
		&models.Attachment{},
		&models.Log{},
	)
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.Remove(tmpFile.Name())
	}

	return db, cleanup
}

func testOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
	}
}

func TestProperty_RefreshSecretConfidentiality(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	// The stored record never contains the refresh secret in plaintext, and
	// the stored ciphertext decrypts back to the original secret
	properties.Property("stored_refresh_secret_is_never_plaintext", prop.ForAll(
		func(secret string) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			service := NewCredentialService(db, []byte("test-encryption-key-32-bytes!!"), testOAuthConfig())

			refreshToken := "refresh-" + secret
			if err := service.StoreInitial("access-token", refreshToken, time.Now().Add(time.Hour)); err != nil {
				return false
			}

			var cred models.Credential
			if err := db.First(&cred).Error; err != nil {
				return false
			}

			if strings.Contains(cred.RefreshTokenEncrypted, refreshToken) {
				return false
			}

			decrypted, err := service.decryptSecret(cred.RefreshTokenEncrypted)
			if err != nil {
				return false
			}
			return decrypted == refreshToken
		},
		gen.AlphaString(),
	))

	// Decrypting with a different key fails with ErrDecryptionFailed rather
	// than yielding corrupted plaintext
	properties.Property("wrong_key_yields_decrypt_error", prop.ForAll(
		func(secret string) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			service := NewCredentialService(db, []byte("test-encryption-key-32-bytes!!"), testOAuthConfig())

			refreshToken := "refresh-" + secret
			if err := service.StoreInitial("access-token", refreshToken, time.Now().Add(time.Hour)); err != nil {
				return false
			}

			var cred models.Credential
			if err := db.First(&cred).Error; err != nil {
				return false
			}

			other := NewCredentialService(db, []byte("a-completely-different-key!!!!!!"), testOAuthConfig())
			_, err := other.decryptSecret(cred.RefreshTokenEncrypted)
			return err == ErrDecryptionFailed
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestLiveTokenSourceWithoutCredential(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewCredentialService(db, []byte("test-encryption-key-32-bytes!!"), testOAuthConfig())

	_, err := service.LiveTokenSource(context.Background())
	if err == nil {
		t.Fatal("expected error for missing credential")
	}
	if !strings.Contains(err.Error(), "not yet authorized") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLiveTokenSourceWithUndecryptableSecret(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewCredentialService(db, []byte("test-encryption-key-32-bytes!!"), testOAuthConfig())
	if err := service.StoreInitial("access-token", "refresh-token", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("StoreInitial failed: %v", err)
	}

	// A key rotation on the host leaves the stored secret undecryptable;
	// acquiring a client must demand reauthorization, not fail silently
	other := NewCredentialService(db, []byte("a-completely-different-key!!!!!!"), testOAuthConfig())
	_, err := other.LiveTokenSource(context.Background())
	if err == nil {
		t.Fatal("expected error for undecryptable refresh secret")
	}
	if !strings.Contains(err.Error(), "reauthorization required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// staticTokenSource hands out a fixed token, standing in for the oauth2
// transport's refresh behavior
type staticTokenSource struct {
	tok *oauth2.Token
}

func (s *staticTokenSource) Token() (*oauth2.Token, error) {
	return s.tok, nil
}

func TestPersistingTokenSourceSavesRotation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewCredentialService(db, []byte("test-encryption-key-32-bytes!!"), testOAuthConfig())
	if err := service.StoreInitial("old-access", "old-refresh", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("StoreInitial failed: %v", err)
	}

	newExpiry := time.Now().Add(time.Hour)
	ts := &persistingTokenSource{
		creds: service,
		inner: &staticTokenSource{tok: &oauth2.Token{
			AccessToken: "new-access",
			Expiry:      newExpiry,
		}},
		lastAccess: "old-access",
	}

	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok.AccessToken != "new-access" {
		t.Fatalf("unexpected access token: %s", tok.AccessToken)
	}

	cred, err := service.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cred.AccessToken != "new-access" {
		t.Fatalf("rotation not persisted: %s", cred.AccessToken)
	}

	// The rotated token carried no refresh secret: the stored one must survive
	refresh, err := service.decryptSecret(cred.RefreshTokenEncrypted)
	if err != nil {
		t.Fatalf("decryptSecret failed: %v", err)
	}
	if refresh != "old-refresh" {
		t.Fatalf("refresh secret was overwritten: %s", refresh)
	}
}

func TestPersistingTokenSourceSavesNewRefreshSecret(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewCredentialService(db, []byte("test-encryption-key-32-bytes!!"), testOAuthConfig())
	if err := service.StoreInitial("old-access", "old-refresh", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("StoreInitial failed: %v", err)
	}

	ts := &persistingTokenSource{
		creds: service,
		inner: &staticTokenSource{tok: &oauth2.Token{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			Expiry:       time.Now().Add(time.Hour),
		}},
		lastAccess: "old-access",
	}

	if _, err := ts.Token(); err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	cred, err := service.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	refresh, err := service.decryptSecret(cred.RefreshTokenEncrypted)
	if err != nil {
		t.Fatalf("decryptSecret failed: %v", err)
	}
	if refresh != "new-refresh" {
		t.Fatalf("new refresh secret not persisted: %s", refresh)
	}
}

func TestStoreInitialKeepsRefreshOnReconsent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewCredentialService(db, []byte("test-encryption-key-32-bytes!!"), testOAuthConfig())
	if err := service.StoreInitial("access-1", "refresh-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("StoreInitial failed: %v", err)
	}

	// Google omits the refresh token when the user re-consents; the stored
	// secret must not be blanked
	if err := service.StoreInitial("access-2", "", time.Now().Add(2*time.Hour)); err != nil {
		t.Fatalf("second StoreInitial failed: %v", err)
	}

	cred, err := service.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cred.AccessToken != "access-2" {
		t.Fatalf("access token not updated: %s", cred.AccessToken)
	}
	refresh, err := service.decryptSecret(cred.RefreshTokenEncrypted)
	if err != nil {
		t.Fatalf("decryptSecret failed: %v", err)
	}
	if refresh != "refresh-1" {
		t.Fatalf("refresh secret lost on re-consent: %s", refresh)
	}
}
