// Package logger builds the process-wide structured logger.
//
// Loggers are plain *slog.Logger values. The handler is JSON or text,
// filters through a shared level that can be changed at runtime (the
// config watcher calls SetLevel) and masks attributes whose key names a
// secret, such as the snapshot encryption key.
package logger
