package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maheshchichkoti/email-archiver/internal/config"
	"github.com/maheshchichkoti/email-archiver/internal/services"
	"golang.org/x/oauth2"
)

// OAuthHandler handles the Google authorization handshake that creates the
// credential record
type OAuthHandler struct {
	credentialService *services.CredentialService
	cfg               *config.Config
	stateStore        *stateStore
}

// stateStore stores OAuth state tokens temporarily
type stateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
}

// NewOAuthHandler creates a new OAuthHandler
func NewOAuthHandler(credentialService *services.CredentialService, cfg *config.Config) *OAuthHandler {
	return &OAuthHandler{
		credentialService: credentialService,
		cfg:               cfg,
		stateStore:        &stateStore{states: make(map[string]time.Time)},
	}
}

// generateState generates a random state token
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// GetGoogleAuthURL returns the Google OAuth authorization URL
// GET /api/oauth/google/auth
func (h *OAuthHandler) GetGoogleAuthURL(c *gin.Context) {
	oauthCfg := h.cfg.OAuthConfig()
	if oauthCfg.ClientID == "" || oauthCfg.ClientSecret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "OAUTH_NOT_CONFIGURED",
				"message": "Google OAuth client credentials are not configured",
			},
		})
		return
	}

	state, err := generateState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STATE_GENERATION_FAILED",
				"message": "Failed to generate state token",
			},
		})
		return
	}

	h.stateStore.mu.Lock()
	h.stateStore.states[state] = time.Now()
	h.stateStore.mu.Unlock()

	go h.cleanupOldStates()

	// Offline access so Google issues a refresh token
	url := oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"auth_url": url},
	})
}

// GoogleCallback handles the Google OAuth callback
// GET /api/oauth/google/callback
func (h *OAuthHandler) GoogleCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	errorParam := c.Query("error")

	if errorParam != "" {
		c.Redirect(http.StatusFound, "/?oauth_error="+errorParam)
		return
	}

	if code == "" || state == "" {
		c.Redirect(http.StatusFound, "/?oauth_error=missing_params")
		return
	}

	h.stateStore.mu.Lock()
	createdAt, exists := h.stateStore.states[state]
	delete(h.stateStore.states, state)
	h.stateStore.mu.Unlock()

	if !exists || time.Since(createdAt) > 10*time.Minute {
		c.Redirect(http.StatusFound, "/?oauth_error=invalid_state")
		return
	}

	token, err := h.cfg.OAuthConfig().Exchange(context.Background(), code)
	if err != nil {
		c.Redirect(http.StatusFound, "/?oauth_error=token_exchange_failed")
		return
	}

	if err := h.credentialService.StoreInitial(token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
		c.Redirect(http.StatusFound, "/?oauth_error=save_credential_failed")
		return
	}

	c.Redirect(http.StatusFound, "/?oauth_success=google")
}

// cleanupOldStates removes states older than 10 minutes
func (h *OAuthHandler) cleanupOldStates() {
	h.stateStore.mu.Lock()
	defer h.stateStore.mu.Unlock()

	for state, createdAt := range h.stateStore.states {
		if time.Since(createdAt) > 10*time.Minute {
			delete(h.stateStore.states, state)
		}
	}
}
