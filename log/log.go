package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	diagLog       zerolog.Logger
	diagFile      *lumberjack.Logger
	translateFile *os.File
	logMu         sync.Mutex
	logReady      bool
	pid           int
	dir           string
)

// StageMetrics are the timings of one network stage.
type StageMetrics struct {
	Stage      string
	Bytes      int
	DNSMs      float64
	TCPMs      float64
	TLSMs      float64
	ServerMs   float64
	TotalMs    float64
	ConnReused bool
	Attempts   int
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: SIGNCAP_LOG_PATH environment variable
	if envPath := os.Getenv("SIGNCAP_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	translatePath := filepath.Join(dir, "translations_log.txt")
	translateFile, err = os.OpenFile(translatePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	diagFile = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "diagnostics_log.txt"),
		MaxSize:    5, // MB
		MaxBackups: 3,
	}
	// lumberjack opens lazily; touch the file so it exists from the start.
	if _, err := diagFile.Write(nil); err != nil {
		translateFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if translateFile != nil {
		translateFile.Close()
		translateFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func StateChange(from, to, message string) {
	if !logReady {
		return
	}
	ev := diagLog.Info().Str("from", from).Str("to", to)
	if message != "" {
		ev = ev.Str("error", message)
	}
	ev.Msg("state")
}

func Stage(m StageMetrics) {
	if !logReady {
		return
	}
	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}
	diagLog.Info().
		Str("stage", m.Stage).
		Str("conn", connStatus).
		Int("bytes", m.Bytes).
		Float64("dns_ms", m.DNSMs).
		Float64("tcp_ms", m.TCPMs).
		Float64("tls_ms", m.TLSMs).
		Float64("server_ms", m.ServerMs).
		Float64("total_ms", m.TotalMs).
		Int("attempts", m.Attempts).
		Msg("stage_metrics")
}

func Recording(format string, chunks, bytes int, d time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("format", format).
		Int("chunks", chunks).
		Int("bytes", bytes).
		Float64("duration_s", d.Seconds()).
		Msg("recording")
}

// TranslationText appends one line to translations_log.txt. confidence
// may be empty.
func TranslationText(text, confidence string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if translateFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text, confidence)
	translateFile.WriteString(line)
}

func SessionStart(device, format, mode string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("device", device).
		Str("format", format).
		Str("mode", mode).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}
