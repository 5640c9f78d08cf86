package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/stretchr/testify/assert"
)

// failingWriter is a helper for testing error propagation.
type failingWriter struct{}

func (fw *failingWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func TestTUIMode(t *testing.T) {
	if err := Init(Options{Buffer: true, Level: "DEBUG", Format: "text"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	slog.Info("Initial log")

	var tuiPane bytes.Buffer
	if err := SetOutput(&tuiPane); err != nil {
		t.Fatalf("SetOutput failed: %v", err)
	}

	if !strings.Contains(tuiPane.String(), "Initial log") {
		t.Errorf("Expected initial log to be flushed to TUI, but it wasn't. Got: %s", tuiPane.String())
	}

	slog.Info("Live log")

	if !strings.Contains(tuiPane.String(), "Live log") {
		t.Errorf("Expected live log to be written to TUI, but it wasn't. Got: %s", tuiPane.String())
	}

	BufferOutput()

	slog.Info("Buffered log")

	if strings.Contains(tuiPane.String(), "Buffered log") {
		t.Errorf("Expected log to be buffered, but it was written to TUI. Got: %s", tuiPane.String())
	}

	if err := SetOutput(&tuiPane); err != nil {
		t.Fatalf("SetOutput failed: %v", err)
	}
	if !strings.Contains(tuiPane.String(), "Buffered log") {
		t.Errorf("Expected buffered log to be flushed on SetOutput. Got: %s", tuiPane.String())
	}

	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestFileLogging(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	if err := Init(Options{Level: "INFO", Format: "json", File: logFile}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	slog.Info("Strip log", "key", "value")
	slog.Debug("Filtered log")

	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	if !strings.Contains(string(content), `"msg":"Strip log"`) || !strings.Contains(string(content), `"key":"value"`) {
		t.Errorf("Expected log to be written to file in JSON format, but it wasn't. Got: %s", string(content))
	}
	if strings.Contains(string(content), "Filtered log") {
		t.Errorf("Debug record should be filtered at INFO level. Got: %s", string(content))
	}
}

func TestInit_BadFile(t *testing.T) {
	err := Init(Options{File: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}

func TestStderrFallback(t *testing.T) {
	if err := Init(Options{Buffer: true, Level: "DEBUG", Format: "text"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	slog.Info("Shutdown log")

	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	var wg sync.WaitGroup
	wg.Add(1)
	var capturedOutput string
	go func() {
		defer wg.Done()
		buf := make([]byte, 1024)
		n, _ := r.Read(buf)
		capturedOutput = string(buf[:n])
	}()

	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	w.Close()
	wg.Wait()
	os.Stderr = oldStderr

	if !strings.Contains(capturedOutput, "Shutdown log") {
		t.Errorf("Expected shutdown log to be written to stderr, but it wasn't. Got: %s", capturedOutput)
	}
}

func TestWriterErrorPropagation(t *testing.T) {
	w := &bufferingTeeWriter{buffer: &bytes.Buffer{}, target: &failingWriter{}}
	n, err := w.Write([]byte("line\n"))
	assert.Equal(t, 5, n)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("INFO"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("Warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

type sent struct {
	msg    string
	pri    journal.Priority
	fields map[string]string
}

func fakeJournal(t *testing.T) *[]sent {
	t.Helper()
	var got []sent
	savedAvail, savedSend := journalAvailable, journalSend
	journalAvailable = func() bool { return true }
	journalSend = func(msg string, pri journal.Priority, fields map[string]string) error {
		got = append(got, sent{msg, pri, fields})
		return nil
	}
	t.Cleanup(func() { journalAvailable, journalSend = savedAvail, savedSend })
	return &got
}

func TestJournalHandler(t *testing.T) {
	got := fakeJournal(t)
	logger := slog.New(NewJournalHandler(slog.LevelInfo)).With("mode", "idle").WithGroup("timer")

	logger.Warn("Timer fired", "role", "auto_off", "seconds", 60, slog.Group("at", "n", 1))
	logger.Debug("Not sent")

	if assert.Len(t, *got, 1) {
		s := (*got)[0]
		assert.Equal(t, "Timer fired", s.msg)
		assert.Equal(t, journal.PriWarning, s.pri)
		assert.Equal(t, "p9813leds", s.fields["SYSLOG_IDENTIFIER"])
		assert.Equal(t, "idle", s.fields["MODE"])
		assert.Equal(t, "auto_off", s.fields["TIMER_ROLE"])
		assert.Equal(t, "60", s.fields["TIMER_SECONDS"])
		assert.Equal(t, "1", s.fields["TIMER_AT_N"])
	}
}

func TestInit_Journal(t *testing.T) {
	got := fakeJournal(t)
	var pane bytes.Buffer
	if err := Init(Options{Level: "INFO", Journal: true}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	assert.NoError(t, SetOutput(&pane))

	slog.Error("Both", "k", "v")
	assert.Contains(t, pane.String(), "Both")
	if assert.Len(t, *got, 1) {
		assert.Equal(t, journal.PriErr, (*got)[0].pri)
	}
	assert.NoError(t, Close())
}
