// Package logger provides structured logging with automatic API key redaction.
//
// It wraps log/slog with helpers for provider calls, session lifecycle events
// and context-scoped fields. All exported functions use DefaultLogger.
package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

var (
	// DefaultLogger is the global structured logger instance.
	DefaultLogger *slog.Logger

	mu        sync.Mutex
	logOutput io.Writer = os.Stderr
	useJSON   bool
)

func init() {
	configure(ParseLevel(os.Getenv("LOG_LEVEL")))
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func configure(level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if useJSON {
		base = slog.NewJSONHandler(logOutput, opts)
	} else {
		base = slog.NewTextHandler(logOutput, opts)
	}
	DefaultLogger = slog.New(NewContextHandler(base))
}

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	configure(level)
}

// SetVerbose enables debug-level logging when verbose is true, otherwise info.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetOutput redirects log output and selects the text or JSON format.
// The current level is preserved.
func SetOutput(w io.Writer, jsonFormat bool) {
	mu.Lock()
	defer mu.Unlock()
	level := slog.LevelInfo
	for _, l := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if DefaultLogger.Enabled(context.Background(), l) {
			level = l
			break
		}
	}
	logOutput = w
	useJSON = jsonFormat
	configure(level)
}

// Info logs an informational message with key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message, adding fields stored in ctx.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message, adding fields stored in ctx.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning. Use for recoverable or unexpected situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning, adding fields stored in ctx.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message, adding fields stored in ctx.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// ProviderCall logs an outgoing provider turn.
func ProviderCall(ctx context.Context, provider, model string, messages, images int, attrs ...any) {
	all := make([]any, 0, 8+len(attrs))
	all = append(all,
		"provider", provider,
		"model", model,
		"messages", messages,
		"images", images,
	)
	all = append(all, attrs...)
	InfoContext(ctx, "🤖 Provider call", all...)
}

// ProviderResponse logs a completed provider turn.
func ProviderResponse(ctx context.Context, provider string, chars int, attrs ...any) {
	all := make([]any, 0, 4+len(attrs))
	all = append(all, "provider", provider, "chars", chars)
	all = append(all, attrs...)
	InfoContext(ctx, "✅ Provider response", all...)
}

// ProviderError logs a failed provider operation.
func ProviderError(ctx context.Context, provider, op string, err error, attrs ...any) {
	all := make([]any, 0, 6+len(attrs))
	all = append(all, "provider", provider, "op", op, "error", err)
	all = append(all, attrs...)
	ErrorContext(ctx, "❌ Provider call failed", all...)
}

var apiKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-or-[a-zA-Z0-9_-]{16,}`), // OpenRouter
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),      // OpenAI-style
	regexp.MustCompile(`gsk_[a-zA-Z0-9]{20,}`),     // Groq
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),    // Google
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_.-]+`),
}

// RedactSensitiveData masks API keys and bearer tokens in input. Keys keep
// their first four characters so log lines stay attributable.
func RedactSensitiveData(input string) string {
	result := input
	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer") {
				return "Bearer [REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}

// APIRequest logs an HTTP request at debug level with redaction applied to
// the URL, headers and JSON body. It is a no-op unless debug is enabled.
func APIRequest(ctx context.Context, provider, method, url string, headers map[string]string, body any) {
	if !DefaultLogger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 10)
	attrs = append(attrs,
		"provider", provider,
		"method", method,
		"url", RedactSensitiveData(url),
	)
	if len(headers) > 0 {
		redacted := make(map[string]string, len(headers))
		for k, v := range headers {
			redacted[k] = RedactSensitiveData(v)
		}
		attrs = append(attrs, "headers", redacted)
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			attrs = append(attrs, "body_error", err.Error())
		} else {
			attrs = append(attrs, "body_bytes", len(data))
		}
	}
	DebugContext(ctx, "🔵 API request", attrs...)
}
