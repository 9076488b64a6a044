package core

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	sessionName     = "recados_session"
	sessionTokenKey = "access_token"
	sessionCSRFKey  = "csrf_token"
	csrfHeader      = "X-CSRF-Token"
	sessionCtxKey   = "session"
	requestIDCtxKey = "request_id"
	requestIDHeader = "X-Request-ID"
)

// NewSessionStore builds the cookie store that keeps a browser's login token.
func NewSessionStore(cfg Config) *sessions.CookieStore {
	return sessions.NewCookieStore([]byte(cfg.SessionKey))
}

// SessionMiddleware loads the session (new or existing) into the context.
// A cookie that fails to decode is treated as an empty session.
func SessionMiddleware(store sessions.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, sessionName)
		if err != nil && session == nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			c.Abort()
			return
		}
		c.Set(sessionCtxKey, session)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *sessions.Session {
	v, ok := c.Get(sessionCtxKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*sessions.Session)
	return sess
}

// OriginMiddleware validates Origin/Referer against the allow list and sets CORS headers.
// With an empty list every origin is accepted outside production.
func OriginMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}
	allowAny := len(allowed) == 0 && !cfg.IsProduction()

	isAllowed := func(origin string) bool {
		if origin == "" || allowAny {
			// Same-origin navigation (no Origin header) is allowed.
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			if referer := c.GetHeader("Referer"); referer != "" {
				if u, err := url.Parse(referer); err == nil && u.Host != "" {
					origin = u.Scheme + "://" + u.Host
				}
			}
		}

		if !isAllowed(origin) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}

		// Preflight handling
		if c.Request.Method == http.MethodOptions && origin != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-CSRF-Token, X-Request-ID")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	c.Header("Access-Control-Expose-Headers", "X-CSRF-Token, X-Request-ID, Retry-After")
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = int(cfg.JWTExpiresIn.Seconds())
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
