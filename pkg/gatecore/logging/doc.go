// Package logging provides a minimal logging facade for the gate engine.
//
// This package defines a Logger interface that wraps a subset of the standard
// library's log/slog functionality. The interface is intentionally small to
// allow applications to provide custom implementations for testing, redaction,
// or integration with existing logging systems.
//
// # Logger Interface
//
// The Logger interface provides context-aware logging methods:
//
//	type Logger interface {
//	    Debug(ctx context.Context, msg string, args ...any)
//	    Info(ctx context.Context, msg string, args ...any)
//	    Warn(ctx context.Context, msg string, args ...any)
//	    Error(ctx context.Context, msg string, args ...any)
//	    With(args ...any) Logger
//	}
//
// # Default Implementation
//
// The package provides a default slog-backed implementation:
//
//	import (
//	    "log/slog"
//	    "github.com/emberpc/gatecore/pkg/gatecore/logging"
//	)
//
//	// Use default logger (slog.Default())
//	logger := logging.New(nil)
//
//	// Use custom slog.Logger
//	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})
//	customLogger := logging.New(slog.New(handler))
//
// # Redaction Support
//
// The package provides utilities for redacting sensitive information:
//
//	// Mark an attribute as redacted
//	logger.Info(ctx, "key loaded", logging.Redacted("key_bytes"))
//	// Logs: key_bytes="[redacted]"
//
//	// Get the redaction placeholder
//	placeholder := logging.Placeholder() // Returns "[redacted]"
//
// # Usage in the gate engine
//
// Loggers can be scoped per gate and per phase for tracing:
//
//	logger := logging.New(nil).With("gate_id", gateID)
//	logger.Debug(ctx, "evaluate_setup start", "phase", "setup")
//
//	// Log with redaction for sensitive data
//	logger.Debug(ctx, "wire secret share materialized",
//	    logging.Redacted("secret_share"),
//	)
//
// # Custom Implementations
//
// Applications can provide custom Logger implementations:
//
//	type customLogger struct {
//	    // ... your fields
//	}
//
//	func (l *customLogger) Debug(ctx context.Context, msg string, args ...any) {
//	    // Custom debug logic
//	}
//	// ... implement other methods
//
//	logger := &customLogger{}
//	// Use logger with the gate engine
//
// # Security Considerations
//
//   - Never log wire secret shares, permutation bits, or garbled keys
//   - Use logging.Redacted() to mark sensitive attributes
//   - Consider using structured logging for better auditability
//   - Ensure log storage is secure and access-controlled
package logging
