package http

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"finanzapp/internal/core"
	applog "finanzapp/internal/log"
)

const (
	headerAPIKey = "X-API-Key"
	headerCSRF   = "X-CSRF-Token"
	cookieCSRF   = "finanzapp_csrf"

	userContextKey = "finanzapp.user"
	csrfRandomSize = 32
)

// Authenticator resolves an API key to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (core.User, error)
}

// apiKeyFrom reads the key from X-API-Key or a Bearer Authorization header.
func apiKeyFrom(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(headerAPIKey)); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// requireUser rejects requests without a valid API key and stores the
// authenticated user on the gin context.
func requireUser(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := apiKeyFrom(c.Request)
		if key == "" {
			respondMessage(c, http.StatusUnauthorized, "not authenticated")
			return
		}
		user, err := auth.Authenticate(ctx, key)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				applog.FromContext(ctx).WithComponent(applog.ComponentAuth).WarnContext(ctx,
					"Rejected unknown API key", applog.FieldPath, c.Request.URL.Path)
				respondMessage(c, http.StatusUnauthorized, "not authenticated")
				return
			}
			respondError(c, err)
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

// currentUser returns the user set by requireUser.
func currentUser(c *gin.Context) core.User {
	if v, ok := c.Get(userContextKey); ok {
		if u, ok := v.(core.User); ok {
			return u
		}
	}
	return core.User{}
}

func currentUserID(c *gin.Context) string { return currentUser(c).ID }

// csrfGuard implements double-submit tokens. A token is a random part and
// its HMAC under the server secret; the client echoes the cookie value in
// the X-CSRF-Token header.
type csrfGuard struct {
	secret []byte
	secure bool
}

func newCSRFGuard(secret string, secure bool) *csrfGuard {
	if secret == "" {
		return nil
	}
	return &csrfGuard{secret: []byte(secret), secure: secure}
}

func (g *csrfGuard) sign(random string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(random))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *csrfGuard) valid(token string) bool {
	random, sig, ok := strings.Cut(token, ".")
	if !ok || random == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(g.sign(random)))
}

func (g *csrfGuard) newToken() (string, error) {
	b := make([]byte, csrfRandomSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	random := hex.EncodeToString(b)
	return random + "." + g.sign(random), nil
}

// issue returns the token of the request cookie, or sets a new one.
func (g *csrfGuard) issue(c *gin.Context) (string, error) {
	if existing, err := c.Cookie(cookieCSRF); err == nil && g.valid(existing) {
		return existing, nil
	}
	token, err := g.newToken()
	if err != nil {
		return "", err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	// readable by scripts so they can echo it in the header
	c.SetCookie(cookieCSRF, token, 0, "/", "", g.secure, false)
	return token, nil
}

// browserRequest reports whether the request came from a browser session.
// Scripted API clients send neither an Origin header nor the token cookie.
func browserRequest(r *http.Request) bool {
	if r.Header.Get("Origin") != "" {
		return true
	}
	_, err := r.Cookie(cookieCSRF)
	return err == nil
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// verify checks the double-submitted token on mutating browser requests.
func (g *csrfGuard) verify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g == nil || !isMutating(c.Request.Method) || !browserRequest(c.Request) {
			c.Next()
			return
		}
		sent := c.GetHeader(headerCSRF)
		cookie, err := c.Cookie(cookieCSRF)
		if sent == "" || err != nil || cookie == "" {
			g.reject(c, "CSRF token missing")
			return
		}
		if subtle.ConstantTimeCompare([]byte(sent), []byte(cookie)) != 1 || !g.valid(cookie) {
			g.reject(c, "CSRF token invalid")
			return
		}
		c.Next()
	}
}

func (g *csrfGuard) reject(c *gin.Context, msg string) {
	ctx := c.Request.Context()
	applog.FromContext(ctx).WithComponent(applog.ComponentSecurity).WarnContext(ctx, msg,
		applog.FieldMethod, c.Request.Method,
		applog.FieldPath, c.Request.URL.Path)
	respondMessage(c, http.StatusForbidden, msg)
}
