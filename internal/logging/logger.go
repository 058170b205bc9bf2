// Package logging provides config-driven categorized file-based logging for livecast.
// Logs are written to .livecast/logs/ with separate files per category.
// Logging is controlled by debug_mode in .livecast/config.yaml - when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Boot/initialization
	CategoryStream    Category = "stream"    // Collection generation and the playback loop
	CategoryBrowser   Category = "browser"   // Chrome launch, navigation, cleanup
	CategoryScrape    Category = "scrape"    // HTML/PDF fetching and chunking
	CategorySearch    Category = "search"    // Google Custom Search calls
	CategoryStore     Category = "store"     // Vector databases and scene history
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryLLM       Category = "llm"       // Chat completion and TTS API calls
	CategoryScript    Category = "script"    // Script / key message / topic generation
	CategoryJudge     Category = "judge"     // Script accuracy judging
	CategoryAudio     Category = "audio"     // Narration synthesis and mixing
	CategoryMedia     Category = "media"     // Text files, image downloads, archives
	CategoryPlayback  Category = "playback"  // Audio playback timing
	CategoryDelivery  Category = "delivery"  // Overlay hub and artifact delivery
)

// loggingConfig mirrors config.LoggingConfig to avoid circular imports
type loggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// configFile structure for reading .livecast/config.yaml
type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// StructuredLogEntry represents a JSON log entry
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"`
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	RequestID string                 `json:"req,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers      = make(map[Category]*Logger)
	loggersMu    sync.RWMutex
	logsDir      string
	workspace    string
	config       loggingConfig
	configLoaded bool
	configMu     sync.RWMutex
	logLevel     int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".livecast", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	if !config.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== livecast logging initialized ===")
	bootLogger.Info("Workspace: %s", workspace)
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", config.Level)

	if len(config.Categories) > 0 {
		enabledCount := 0
		for cat, enabled := range config.Categories {
			if enabled {
				enabledCount++
			}
			bootLogger.Debug("Category '%s': %v", cat, enabled)
		}
		bootLogger.Info("Enabled categories: %d/%d", enabledCount, len(config.Categories))
	} else {
		bootLogger.Info("All categories enabled (no category filter)")
	}

	return nil
}

// loadConfig reads the logging block from .livecast/config.yaml
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, ".livecast", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			config = loggingConfig{}
			configLoaded = true
			return nil
		}
		return err
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging
	configLoaded = true
	logLevel = parseLevel(config.Level)
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ReloadConfig reloads the config from disk.
func ReloadConfig() error {
	return loadConfig()
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level string, threshold int, format string, args ...interface{}) {
	if l.logger == nil || logLevel > threshold {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if IsJSONFormat() {
		data, err := json.Marshal(StructuredLogEntry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     level,
			Message:   msg,
		})
		if err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s", levelTag(level), msg)
}

func levelTag(level string) string {
	switch level {
	case "debug":
		return "DEBUG"
	case "warn":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write("debug", LevelDebug, format, args...)
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	l.write("info", LevelInfo, format, args...)
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write("warn", LevelWarn, format, args...)
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("error", LevelError, format, args...)
}

// StructuredLog writes a fully structured log entry with custom fields
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	if IsJSONFormat() {
		data, err := json.Marshal(StructuredLogEntry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     level,
			Message:   msg,
			Fields:    fields,
		})
		if err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s | fields=%v", levelTag(level), msg, fields)
}

// IsJSONFormat returns whether JSON logging is enabled
func IsJSONFormat() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.JSONFormat
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Stream(format string, args ...interface{})      { Get(CategoryStream).Info(format, args...) }
func StreamDebug(format string, args ...interface{}) { Get(CategoryStream).Debug(format, args...) }
func StreamWarn(format string, args ...interface{})  { Get(CategoryStream).Warn(format, args...) }
func StreamError(format string, args ...interface{}) { Get(CategoryStream).Error(format, args...) }

func Browser(format string, args ...interface{})      { Get(CategoryBrowser).Info(format, args...) }
func BrowserDebug(format string, args ...interface{}) { Get(CategoryBrowser).Debug(format, args...) }
func BrowserWarn(format string, args ...interface{})  { Get(CategoryBrowser).Warn(format, args...) }
func BrowserError(format string, args ...interface{}) { Get(CategoryBrowser).Error(format, args...) }

func Scrape(format string, args ...interface{})      { Get(CategoryScrape).Info(format, args...) }
func ScrapeDebug(format string, args ...interface{}) { Get(CategoryScrape).Debug(format, args...) }
func ScrapeWarn(format string, args ...interface{})  { Get(CategoryScrape).Warn(format, args...) }

func Search(format string, args ...interface{})      { Get(CategorySearch).Info(format, args...) }
func SearchDebug(format string, args ...interface{}) { Get(CategorySearch).Debug(format, args...) }
func SearchWarn(format string, args ...interface{})  { Get(CategorySearch).Warn(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warn(format, args...) }

func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

func LLM(format string, args ...interface{})      { Get(CategoryLLM).Info(format, args...) }
func LLMDebug(format string, args ...interface{}) { Get(CategoryLLM).Debug(format, args...) }
func LLMWarn(format string, args ...interface{})  { Get(CategoryLLM).Warn(format, args...) }
func LLMError(format string, args ...interface{}) { Get(CategoryLLM).Error(format, args...) }

func Script(format string, args ...interface{})      { Get(CategoryScript).Info(format, args...) }
func ScriptDebug(format string, args ...interface{}) { Get(CategoryScript).Debug(format, args...) }

func Judge(format string, args ...interface{}) { Get(CategoryJudge).Info(format, args...) }

func Audio(format string, args ...interface{})      { Get(CategoryAudio).Info(format, args...) }
func AudioDebug(format string, args ...interface{}) { Get(CategoryAudio).Debug(format, args...) }

func Media(format string, args ...interface{})      { Get(CategoryMedia).Info(format, args...) }
func MediaDebug(format string, args ...interface{}) { Get(CategoryMedia).Debug(format, args...) }
func MediaWarn(format string, args ...interface{})  { Get(CategoryMedia).Warn(format, args...) }

func Playback(format string, args ...interface{})     { Get(CategoryPlayback).Info(format, args...) }
func PlaybackWarn(format string, args ...interface{}) { Get(CategoryPlayback).Warn(format, args...) }

func Delivery(format string, args ...interface{})      { Get(CategoryDelivery).Info(format, args...) }
func DeliveryDebug(format string, args ...interface{}) { Get(CategoryDelivery).Debug(format, args...) }
func DeliveryWarn(format string, args ...interface{})  { Get(CategoryDelivery).Warn(format, args...) }

// =============================================================================
// REQUEST ID TRACING
// =============================================================================

// RequestLogger provides request-scoped logging with a correlation ID.
// The stream controller uses the collection ID as the request ID.
type RequestLogger struct {
	logger    *Logger
	requestID string
	fields    map[string]interface{}
}

// WithRequestID creates a request-scoped logger
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{
		logger:    Get(category),
		requestID: requestID,
		fields:    make(map[string]interface{}),
	}
}

// WithField adds a field to the request logger
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	r.fields[key] = value
	return r
}

func (r *RequestLogger) formatMsg(format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if len(r.fields) > 0 {
		return fmt.Sprintf("[req:%s] %s | %v", r.requestID, msg, r.fields)
	}
	return fmt.Sprintf("[req:%s] %s", r.requestID, msg)
}

func (r *RequestLogger) Info(format string, args ...interface{}) {
	r.logger.Info("%s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Warn(format string, args ...interface{}) {
	r.logger.Warn("%s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Error(format string, args ...interface{}) {
	r.logger.Error("%s", r.formatMsg(format, args...))
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
