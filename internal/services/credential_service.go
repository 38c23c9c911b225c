package services

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/maheshchichkoti/email-archiver/internal/database/models"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

var (
	// ErrNotAuthorized indicates no usable credential exists; the mailbox
	// must be (re)authorized through the OAuth flow before syncing
	ErrNotAuthorized = errors.New("mailbox not authorized")
	// ErrEncryptionFailed indicates refresh secret encryption failed
	ErrEncryptionFailed = errors.New("refresh secret encryption failed")
	// ErrDecryptionFailed indicates refresh secret decryption failed
	ErrDecryptionFailed = errors.New("refresh secret decryption failed")
)

// CredentialService owns the single Credential row: the OAuth token pair,
// its encrypted refresh secret, and the last-seen change cursor. All writes
// do a full read-modify-write under a process-wide lock so concurrent
// rotation and cursor commits cannot interleave partial updates.
type CredentialService struct {
	db            *gorm.DB
	encryptionKey []byte // 32 bytes for AES-256
	oauthCfg      *oauth2.Config
	mu            sync.Mutex
}

// NewCredentialService creates a new CredentialService instance
func NewCredentialService(db *gorm.DB, encryptionKey []byte, oauthCfg *oauth2.Config) *CredentialService {
	// Ensure key is 32 bytes for AES-256
	key := make([]byte, 32)
	copy(key, encryptionKey)
	return &CredentialService{
		db:            db,
		encryptionKey: key,
		oauthCfg:      oauthCfg,
	}
}

// encryptSecret encrypts a secret using AES-256-GCM
func (s *CredentialService) encryptSecret(secret string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(secret), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptSecret decrypts a secret using AES-256-GCM
func (s *CredentialService) decryptSecret(encrypted string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrDecryptionFailed
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// load reads the singleton credential row
func (s *CredentialService) load() (*models.Credential, error) {
	var cred models.Credential
	if err := s.db.First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: not yet authorized", ErrNotAuthorized)
		}
		return nil, err
	}
	return &cred, nil
}

// Get returns the stored credential record
func (s *CredentialService) Get() (*models.Credential, error) {
	return s.load()
}

// StoreInitial persists the token pair obtained from the authorization
// handshake. An existing record is updated in place; an empty refresh token
// never overwrites a previously stored refresh secret.
func (s *CredentialService) StoreInitial(accessToken, refreshToken string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.load()
	if err != nil {
		if !errors.Is(err, ErrNotAuthorized) {
			return err
		}
		if refreshToken == "" {
			return fmt.Errorf("%w: authorization returned no refresh token", ErrNotAuthorized)
		}
		cred = &models.Credential{}
	}

	cred.AccessToken = accessToken
	cred.Expiry = expiry
	if refreshToken != "" {
		encrypted, err := s.encryptSecret(refreshToken)
		if err != nil {
			return err
		}
		cred.RefreshTokenEncrypted = encrypted
	}

	return s.db.Save(cred).Error
}

// saveRotation persists a credential rotation reported by the transport.
// Access token and expiry are always written; the refresh secret only when
// the remote actually issued a new one.
func (s *CredentialService) saveRotation(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.load()
	if err != nil {
		return err
	}

	cred.AccessToken = tok.AccessToken
	cred.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		encrypted, err := s.encryptSecret(tok.RefreshToken)
		if err != nil {
			return err
		}
		cred.RefreshTokenEncrypted = encrypted
	}

	return s.db.Save(cred).Error
}

// Cursor returns the last committed change cursor; nil means never synced
func (s *CredentialService) Cursor() (*string, error) {
	cred, err := s.load()
	if err != nil {
		return nil, err
	}
	return cred.LastCursor, nil
}

// SetCursor advances the stored change cursor
func (s *CredentialService) SetCursor(cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.load()
	if err != nil {
		return err
	}

	cred.LastCursor = &cursor
	return s.db.Save(cred).Error
}

// LiveTokenSource returns a token source preloaded with the stored
// credential pair. The underlying oauth2 transport refreshes the access
// token on expiry; every rotation it reports is persisted synchronously
// before the token is handed to the caller.
func (s *CredentialService) LiveTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	cred, err := s.load()
	if err != nil {
		return nil, err
	}

	if cred.RefreshTokenEncrypted == "" {
		return nil, fmt.Errorf("%w: no refresh secret stored", ErrNotAuthorized)
	}

	refreshToken, err := s.decryptSecret(cred.RefreshTokenEncrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: reauthorization required: %v", ErrNotAuthorized, err)
	}

	tok := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: refreshToken,
		Expiry:       cred.Expiry,
	}

	return &persistingTokenSource{
		creds:      s,
		inner:      s.oauthCfg.TokenSource(ctx, tok),
		lastAccess: cred.AccessToken,
	}, nil
}

// persistingTokenSource wraps an oauth2.TokenSource and writes every token
// rotation back to the credential store before returning it, so persistence
// is an explicit post-call step rather than a hidden background mutation.
type persistingTokenSource struct {
	creds      *CredentialService
	inner      oauth2.TokenSource
	mu         sync.Mutex
	lastAccess string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.inner.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken != p.lastAccess {
		if err := p.creds.saveRotation(tok); err != nil {
			return nil, fmt.Errorf("persist rotated credential: %w", err)
		}
		p.lastAccess = tok.AccessToken
	}

	return tok, nil
}
