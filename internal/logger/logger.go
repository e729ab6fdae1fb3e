package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	mu          sync.RWMutex
	logInstance *Logger
	levelNames  = map[LogLevel]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
		FATAL: "FATAL",
	}
	zerologLevels = map[LogLevel]zerolog.Level{
		DEBUG: zerolog.DebugLevel,
		INFO:  zerolog.InfoLevel,
		WARN:  zerolog.WarnLevel,
		ERROR: zerolog.ErrorLevel,
		FATAL: zerolog.FatalLevel,
	}
)

type Logger struct {
	zl       zerolog.Logger
	level    LogLevel
	file     *os.File
	filename string
}

// Init sets up console logging and, with logToFile, a JSON copy in
// logs/bot_YYYY-MM-DD.log.
func Init(logLevel string, logToFile bool) error {
	level := getLevelFromString(logLevel)

	var writers []io.Writer
	writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"})

	var logFile *os.File
	var filename string
	if logToFile {
		if err := os.MkdirAll("logs", 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %v", err)
		}

		filename = filepath.Join("logs", fmt.Sprintf("bot_%s.log", time.Now().Format("2006-01-02")))

		file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %v", err)
		}
		logFile = file
		writers = append(writers, file)
	}

	set(&Logger{
		zl:       newZerolog(zerolog.MultiLevelWriter(writers...), level),
		level:    level,
		file:     logFile,
		filename: filename,
	})

	Info("Logger initialized", "level", levelNames[level], "file", filename)
	return nil
}

// InitWithWriter routes all output to w as JSON lines.
func InitWithWriter(w io.Writer, logLevel string) {
	level := getLevelFromString(logLevel)
	set(&Logger{zl: newZerolog(w, level), level: level})
}

func newZerolog(w io.Writer, level LogLevel) zerolog.Logger {
	return zerolog.New(w).
		Level(zerologLevels[level]).
		With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()
}

func set(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	if logInstance != nil && logInstance.file != nil {
		logInstance.file.Close()
	}
	logInstance = l
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logInstance
}

func getLevelFromString(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func (l *Logger) log(level LogLevel, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	var ev *zerolog.Event
	switch level {
	case DEBUG:
		ev = l.zl.Debug()
	case INFO:
		ev = l.zl.Info()
	case WARN:
		ev = l.zl.Warn()
	default:
		// FATAL is logged at error level; Fatal exits on its own.
		ev = l.zl.Error()
	}

	for i := 0; i < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if i+1 >= len(fields) {
			ev = ev.Str("extra", key)
			break
		}
		if err, ok := fields[i+1].(error); ok {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, fields[i+1])
	}
	ev.Msg(msg)
}

func Debug(msg string, fields ...interface{}) {
	if l := current(); l != nil {
		l.log(DEBUG, msg, fields...)
	}
}

func Info(msg string, fields ...interface{}) {
	if l := current(); l != nil {
		l.log(INFO, msg, fields...)
	}
}

func Warn(msg string, fields ...interface{}) {
	if l := current(); l != nil {
		l.log(WARN, msg, fields...)
	}
}

func Error(msg string, fields ...interface{}) {
	if l := current(); l != nil {
		l.log(ERROR, msg, fields...)
	}
}

func Fatal(msg string, fields ...interface{}) {
	if l := current(); l != nil {
		l.log(FATAL, msg, fields...)
	}
	os.Exit(1)
}

// LogCommand records an incoming command or text message.
func LogCommand(chatID int64, username, text string) {
	Info("Command", "chat_id", chatID, "user", username, "text", text)
}

func LogButtonClick(chatID int64, username, data string) {
	Debug("Button click", "chat_id", chatID, "user", username, "data", data)
}

func LogError(chatID int64, msg string, err error) {
	Error(msg, "chat_id", chatID, "error", err)
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logInstance != nil && logInstance.file != nil {
		logInstance.file.Close()
		logInstance.file = nil
	}
}
