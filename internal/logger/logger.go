package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// ParseLevel maps a level name to a LogLevel, defaulting to INFO.
func ParseLevel(name string) LogLevel {
	for level, n := range levelNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return level
		}
	}
	return INFO
}

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

type Options struct {
	// Dir receives a daily JSON log file; empty disables file output.
	Dir      string
	Level    LogLevel
	Terminal io.Writer
	NoColor  bool
}

type Logger struct {
	mu           sync.Mutex
	terminal     io.Writer
	logFile      *os.File
	level        LogLevel
	colorEnabled bool
	exit         func(int)
}

func NewLogger(opts Options) *Logger {
	l := &Logger{
		terminal:     opts.Terminal,
		level:        opts.Level,
		colorEnabled: !opts.NoColor,
		exit:         os.Exit,
	}
	if l.terminal == nil {
		l.terminal = os.Stdout
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			l.Warn("LOGGER", fmt.Sprintf("Failed to create log directory %s: %v", opts.Dir, err))
		} else {
			name := filepath.Join(opts.Dir, fmt.Sprintf("booking-service-%s.log", time.Now().Format("2006-01-02")))
			f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				l.Warn("LOGGER", fmt.Sprintf("Failed to open log file %s: %v", name, err))
			} else {
				l.logFile = f
				l.Info("LOGGER", fmt.Sprintf("Log file: %s", name))
			}
		}
	}

	return l
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{terminal: io.Discard, level: FATAL + 1, exit: func(int) {}}
}

func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     levelNames[level],
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.terminal, l.formatTerminalOutput(entry))
	if l.logFile != nil {
		if b, err := json.Marshal(entry); err == nil {
			l.logFile.Write(append(b, '\n'))
		}
	}
}

func (l *Logger) formatTerminalOutput(entry LogEntry) string {
	timestamp := entry.Timestamp[11:19]

	var levelColor, categoryColor *color.Color
	switch entry.Level {
	case "DEBUG":
		levelColor = color.New(color.FgCyan)
		categoryColor = color.New(color.FgCyan, color.Bold)
	case "INFO":
		levelColor = color.New(color.FgGreen)
		categoryColor = color.New(color.FgGreen, color.Bold)
	case "WARN":
		levelColor = color.New(color.FgYellow)
		categoryColor = color.New(color.FgYellow, color.Bold)
	default:
		levelColor = color.New(color.FgRed)
		categoryColor = color.New(color.FgRed, color.Bold)
	}
	timeColor := color.New(color.FgBlue)
	fileColor := color.New(color.FgMagenta)
	if !l.colorEnabled {
		for _, c := range []*color.Color{levelColor, categoryColor, timeColor, fileColor} {
			c.DisableColor()
		}
	}

	out := fmt.Sprintf("%s %s %s %s",
		timeColor.Sprint(timestamp),
		levelColor.Sprintf("%-5s", entry.Level),
		categoryColor.Sprintf("[%-10s]", entry.Category),
		entry.Message)
	if entry.File != "" && entry.Line > 0 {
		out += fileColor.Sprintf(" (%s:%d)", entry.File, entry.Line)
	}
	return out + "\n"
}

func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	l.exit(1)
}

// Component helpers keep message layouts consistent across packages.

func (l *Logger) LogBooking(action, bookingID, message string) {
	l.log(INFO, "BOOKING", fmt.Sprintf("[%s] %s - %s", action, bookingID, message))
}

func (l *Logger) LogAPI(method, path string, status int, duration time.Duration) {
	l.log(INFO, "API", fmt.Sprintf("%s %s - %d (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.log(INFO, "KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.log(INFO, "DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.log(WARN, "SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.Info("LOGGER", "Closing log file")
		l.logFile.Close()
	}
}
