package applog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	maxFileSize = 5 << 20 // 5 MB
	maxValueLen = 200
	truncSuffix = "…"
)

var (
	mu     sync.Mutex
	file   *os.File
	logger *logrus.Logger
)

// Init opens the log file for appending. Call once at startup.
// If the file exceeds 5 MB, it is rotated (renamed to .log.1) before opening.
// Safe to skip: all log calls become no-ops if not initialized.
func Init(dir, level string) error {
	path := filepath.Join(dir, "tabtimer.log")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil && info.Size() > maxFileSize {
		os.Rename(path, path+".1")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	l := newLogger(f, level)

	mu.Lock()
	if file != nil {
		file.Close()
	}
	file = f
	logger = l
	mu.Unlock()
	return nil
}

// SetOutput routes log lines to w instead of a file. Used by tests and by
// `serve --verbose`.
func SetOutput(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w, level)
}

func newLogger(w io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "event"},
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	logger = nil
}

// Info logs a structured event line.
//
//	applog.Info("ws.connected", "remote", addr)
//	applog.Info("timer.armed", "tab", 5, "in", d)
func Info(event string, kv ...any) {
	write(logrus.InfoLevel, event, nil, kv)
}

// Debug logs a high-volume event, dropped unless the level is debug.
func Debug(event string, kv ...any) {
	write(logrus.DebugLevel, event, nil, kv)
}

// Error logs an event with an error.
//
//	applog.Error("ws.send", err, "action", "close")
func Error(event string, err error, kv ...any) {
	write(logrus.ErrorLevel, event, err, kv)
}

func write(level logrus.Level, event string, err error, kv []any) {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil || !l.IsLevelEnabled(level) {
		return
	}

	fields := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = truncate(fmt.Sprint(kv[i+1]))
	}
	entry := l.WithFields(fields)
	if err != nil {
		entry = entry.WithField(logrus.ErrorKey, truncate(err.Error()))
	}
	entry.Log(level, event)
}

func truncate(s string) string {
	if len(s) > maxValueLen {
		return s[:maxValueLen] + truncSuffix
	}
	return s
}
