package common

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Log levels for hierarchical logging
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var logLevels = map[string]int{
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
}

const redacted = "***REDACTED***"

// Patterns that might contain secrets
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)-----BEGIN [A-Z0-9 ]*PRIVATE KEY-----.*?-----END [A-Z0-9 ]*PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)\bbearer\s+[^\s,"]+`),
	regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api[-_]?key|private[-_]?key)\s*[=:]\s*[^\s,"]+`),
}

// Logger writes leveled lines as text or JSON. Every line is sanitized
// before it is written. Logs never go to stdout: stdout belongs to the
// inventory document and the engine output.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	level   int
	json    bool
	secrets []string
	now     func() time.Time
}

// NewLogger builds a logger from the configured level and format. The API
// token is registered as a secret up front.
func NewLogger(cfg *Config, out io.Writer) *Logger {
	l := &Logger{out: out, level: LevelInfo, now: time.Now}
	if cfg != nil {
		if lvl, ok := logLevels[cfg.LogLevel]; ok {
			l.level = lvl
		}
		l.json = cfg.LogFormat == "json"
		l.AddSecret(cfg.APIToken)
	}
	return l
}

// AddSecret makes the logger redact every occurrence of s.
func (l *Logger) AddSecret(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.secrets = append(l.secrets, s)
}

// Enabled reports whether a message at level would be written.
func (l *Logger) Enabled(level int) bool {
	return level >= l.level
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(LevelDebug, "DEBUG", format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(LevelInfo, "INFO", format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(LevelWarn, "WARN", format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(LevelError, "ERROR", format, args...) }

func (l *Logger) logf(level int, name, format string, args ...interface{}) {
	if l == nil || !l.Enabled(level) {
		return
	}
	message := l.sanitize(fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.now()
	if l.json {
		entry := map[string]interface{}{
			"timestamp": ts.UTC().Format(time.RFC3339Nano),
			"level":     strings.ToLower(name),
			"message":   message,
		}
		if b, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(l.out, string(b))
			return
		}
	}
	fmt.Fprintf(l.out, "%s %s: %s\n", ts.Format("2006/01/02 15:04:05"), name, message)
}

// LogCommandOutput logs command output line by line at debug level only,
// truncated to keep engine chatter out of normal logs.
func (l *Logger) LogCommandOutput(prefix string, output []byte) {
	if l == nil || !l.Enabled(LevelDebug) {
		return
	}
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return
	}
	lines := strings.Split(trimmed, "\n")
	maxLines := 20
	if len(lines) > maxLines {
		lines = append(lines[:maxLines], fmt.Sprintf("... %d more lines truncated ...", len(lines)-maxLines))
	}
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			l.Debugf("%s: %s", prefix, line)
		}
	}
}

func (l *Logger) sanitize(line string) string {
	l.mu.Lock()
	secrets := l.secrets
	l.mu.Unlock()
	for _, s := range secrets {
		line = strings.ReplaceAll(line, s, redacted)
	}
	for _, re := range secretPatterns {
		line = re.ReplaceAllStringFunc(line, func(match string) string {
			// Keep the label but redact the value
			if i := strings.IndexAny(match, "=:"); i > 0 && !strings.HasPrefix(match, "-----") {
				return match[:i+1] + redacted
			}
			if fields := strings.Fields(match); len(fields) == 2 && strings.EqualFold(fields[0], "bearer") {
				return fields[0] + " " + redacted
			}
			return redacted
		})
	}
	return line
}
