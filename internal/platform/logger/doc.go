// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels, and carries loggers through contexts so that
// request- and operation-scoped attributes reach every layer.
package logger
