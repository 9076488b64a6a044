package core

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

const userCtxKey = "user"

// AccessPolicy records which routes skip authentication. Routes are
// protected unless marked public.
type AccessPolicy struct {
	mu     sync.RWMutex
	public map[string]struct{}
}

func NewAccessPolicy() *AccessPolicy {
	return &AccessPolicy{public: make(map[string]struct{})}
}

// MarkPublic takes the route pattern as gin reports it in FullPath, e.g. "/api/v1/recados/:id".
func (p *AccessPolicy) MarkPublic(method, fullPath string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.public[method+" "+fullPath] = struct{}{}
}

func (p *AccessPolicy) IsPublic(method, fullPath string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.public[method+" "+fullPath]
	return ok
}

// AccessGate lets public routes through and requires a valid session token on
// every other matched route. The token comes from the Authorization header,
// or, when that header is absent, from the session cookie set at login.
// Cookie-authenticated writes must also echo the session CSRF token.
func AccessGate(policy *AccessPolicy, verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		fullPath := c.FullPath()
		// unmatched routes fall through to gin's 404
		if fullPath == "" || policy.IsPublic(c.Request.Method, fullPath) {
			c.Next()
			return
		}

		raw, fromSession, err := extractToken(c)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		claims, err := verifier.ParseToken(raw)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}
		user, ok := verifier.VerifyClaims(*claims)
		if !ok {
			abortUnauthorized(c, ErrInvalidToken)
			return
		}

		if fromSession && !isSafeMethod(c.Request.Method) && !validCSRF(c) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "invalid csrf token")
			c.Abort()
			return
		}

		c.Set(userCtxKey, user)
		c.Next()
	}
}

// CurrentUser returns the user attached by AccessGate.
func CurrentUser(c *gin.Context) (User, bool) {
	v, ok := c.Get(userCtxKey)
	if !ok {
		return User{}, false
	}
	u, ok := v.(User)
	return u, ok
}

func extractToken(c *gin.Context) (string, bool, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", false, ErrInvalidToken
		}
		return token, false, nil
	}
	if sess := sessionFrom(c); sess != nil {
		if token, _ := sess.Values[sessionTokenKey].(string); token != "" {
			return token, true, nil
		}
	}
	return "", false, ErrMissingToken
}

func validCSRF(c *gin.Context) bool {
	sess := sessionFrom(c)
	if sess == nil {
		return false
	}
	want, _ := sess.Values[sessionCSRFKey].(string)
	got := c.GetHeader(csrfHeader)
	return want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func abortUnauthorized(c *gin.Context, err error) {
	c.Header("WWW-Authenticate", `Bearer realm="recados"`)
	respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	c.Abort()
}
