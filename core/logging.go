package core

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogging builds the process logger. Output always goes to stdout and is
// also appended to cfg.LogDir/filename when LogDir is set. The logger becomes
// slog's default and gin writes through the same sink.
// Caller should close the returned io.Closer on shutdown.
func SetupLogging(cfg Config, filename string) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.LogDir != "" {
		if filename == "" {
			filename = "app.log"
		}
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log dir %s: %w", cfg.LogDir, err)
		}
		path := filepath.Join(cfg.LogDir, filename)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	logger := NewLogger(cfg, out)
	slog.SetDefault(logger)
	gin.DefaultWriter = out
	gin.DefaultErrorWriter = out
	return logger, closer, nil
}

// NewLogger picks a JSON handler in production and a text handler elsewhere.
func NewLogger(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RequestLogger logs one line per request and tags it with a request id,
// reusing an incoming X-Request-ID when the client sent one.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDCtxKey, reqID)
		c.Header(requestIDHeader, reqID)

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		logger.LogAttrs(c.Request.Context(), level,
			fmt.Sprintf("%s %s %d", c.Request.Method, c.Request.URL.Path, status),
			slog.String("request_id", reqID),
			slog.String("client_ip", c.ClientIP()),
			slog.Duration("duration", time.Since(start)),
			slog.Int("bytes", c.Writer.Size()),
		)
	}
}
