package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// RouterDeps bundles what the HTTP layer needs. Stats may be nil.
type RouterDeps struct {
	Sessions sessions.Store
	Auth     *AdminAuthService
	Recados  RecadoRepository
	Limiter  *RateLimiter
	Stats    RateLimitStats
	Logger   *slog.Logger
}

type route struct {
	method  string
	path    string
	public  bool
	handler gin.HandlerFunc
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, deps RouterDeps) *gin.Engine {
	startedAt := time.Now()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Limiter == nil {
		deps.Limiter = NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	r := gin.New()
	// ClientIP keys the rate limiter; X-Forwarded-For is honoured only from these.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Warn("invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	policy := NewAccessPolicy()

	// Global middleware: recovery -> log -> rate limit -> origin/CORS -> session -> gate
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(deps.Limiter, deps.Stats, logger))
	r.Use(OriginMiddleware(cfg))
	r.Use(SessionMiddleware(deps.Sessions))
	r.Use(AccessGate(policy, deps.Auth))

	h := &recadoHandlers{repo: deps.Recados, logger: logger}
	a := &authHandlers{cfg: cfg, auth: deps.Auth, logger: logger}

	routes := []route{
		{http.MethodGet, "/recados", true, h.list},
		{http.MethodGet, "/recados/:id", true, h.get},
		{http.MethodPost, "/recados", false, h.create},
		{http.MethodPatch, "/recados/:id", false, h.update},
		{http.MethodPatch, "/recados/:id/read", false, h.markRead},
		{http.MethodPut, "/recados/:id", false, h.replace},
		{http.MethodDelete, "/recados/:id", false, h.remove},

		{http.MethodPost, "/auth/login", true, a.login},
		{http.MethodPost, "/auth/logout", true, a.logout},
		{http.MethodGet, "/auth/me", false, a.me},

		{http.MethodGet, "/health", true, func(c *gin.Context) {
			c.JSON(http.StatusOK, CollectHealth(c.Request.Context(), deps.Recados, deps.Stats, startedAt))
		}},
	}

	api := r.Group(cfg.APIPrefix)
	for _, rt := range routes {
		api.Handle(rt.method, rt.path, rt.handler)
		if rt.public {
			policy.MarkPublic(rt.method, joinPaths(api.BasePath(), rt.path))
		}
	}

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})

	return r
}

type recadoHandlers struct {
	repo   RecadoRepository
	logger *slog.Logger
}

func (h *recadoHandlers) list(c *gin.Context) {
	offset, limit, err := parsePagination(c.Query("offset"), c.Query("limit"))
	if err != nil {
		respondAppError(c, h.logger, err)
		return
	}
	page, err := h.repo.List(c.Request.Context(), offset, limit)
	if err != nil {
		respondAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *recadoHandlers) get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		respondAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *recadoHandlers) create(c *gin.Context) {
	in, ok := h.validBody(c, RecadoCreateSchema)
	if !ok {
		return
	}
	rec, err := h.repo.Create(c.Request.Context(), recadoInputFrom(in))
	if err != nil {
		respondAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *recadoHandlers) update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	in, ok := h.validBody(c, RecadoUpdateSchema)
	if !ok {
		return
	}
	rec, err := h.repo.UpdatePartial(c.Request.Context(), id, recadoPatchFrom(in))
	if err != nil {
		respondAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *recadoHandlers) replace(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	in, ok := h.validBody(c, RecadoReplaceSchema)
	if !ok {
		return
	}
	rec, err := h.repo.ReplaceFull(c.Request.Context(), id, recadoInputFrom(in))
	if err != nil {
		respondAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *recadoHandlers) markRead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.repo.MarkRead(c.Request.Context(), id)
	if err != nil {
		respondAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *recadoHandlers) remove(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.repo.Remove(c.Request.Context(), id); err != nil {
		respondAppError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *recadoHandlers) validBody(c *gin.Context, schema Schema) (map[string]any, bool) {
	body, err := bindJSONMap(c)
	if err == nil {
		body, err = schema.Validate(body)
	}
	if err != nil {
		respondAppError(c, h.logger, err)
		return nil, false
	}
	return body, true
}

type authHandlers struct {
	cfg    Config
	auth   *AdminAuthService
	logger *slog.Logger
}

func (a *authHandlers) login(c *gin.Context) {
	body, err := bindJSONMap(c)
	if err == nil {
		body, err = LoginSchema.Validate(body)
	}
	if err != nil {
		respondAppError(c, a.logger, err)
		return
	}

	res, err := a.auth.Login(stringOf(body, "username"), stringOf(body, "password"))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			a.logger.WarnContext(c.Request.Context(), "login failed", "username", stringOf(body, "username"), "client_ip", c.ClientIP())
			respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
			return
		}
		respondAppError(c, a.logger, err)
		return
	}

	session := sessionFrom(c)
	if session == nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
		return
	}
	csrfToken, err := generateCSRFToken()
	if err != nil {
		respondAppError(c, a.logger, err)
		return
	}

	// reset session values (simple rotation)
	session.Values = map[interface{}]interface{}{}
	session.Values[sessionTokenKey] = res.AccessToken
	session.Values[sessionCSRFKey] = csrfToken
	applySessionOptions(a.cfg, session)
	if err := session.Save(c.Request, c.Writer); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to set session")
		return
	}

	c.Header(csrfHeader, csrfToken)
	c.JSON(http.StatusOK, res)
}

func (a *authHandlers) logout(c *gin.Context) {
	sess := sessionFrom(c)
	if sess == nil {
		c.Status(http.StatusNoContent)
		return
	}
	sess.Values = map[interface{}]interface{}{}
	applySessionOptions(a.cfg, sess)
	sess.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
	if err := sess.Save(c.Request, c.Writer); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *authHandlers) me(c *gin.Context) {
	u, ok := CurrentUser(c)
	if !ok {
		abortUnauthorized(c, ErrMissingToken)
		return
	}
	c.JSON(http.StatusOK, u)
}

// parseID answers 400 itself when the path id is not a positive integer.
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return 0, false
	}
	return id, true
}

// parsePagination clamps negatives to 0 and caps limit; only non-integers are rejected.
func parsePagination(offsetStr, limitStr string) (int, int, error) {
	var errs []FieldError
	offset, limit := 0, defaultLimit
	if strings.TrimSpace(offsetStr) != "" {
		v, err := strconv.Atoi(offsetStr)
		if err != nil {
			errs = append(errs, FieldError{Field: "offset", Message: `"offset" must be an integer`})
		} else {
			offset = max(v, 0)
		}
	}
	if strings.TrimSpace(limitStr) != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil {
			errs = append(errs, FieldError{Field: "limit", Message: `"limit" must be an integer`})
		} else {
			limit = min(max(v, 0), maxLimit)
		}
	}
	if len(errs) > 0 {
		return 0, 0, &ValidationError{Errors: errs}
	}
	return offset, limit, nil
}

func joinPaths(base, rel string) string {
	if rel == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(rel, "/")
}
