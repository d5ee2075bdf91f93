package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("expected nop logger when no level is configured")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	defer SetLogger(nil)

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !GetLogger().Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
}

func TestConcurrentUse(t *testing.T) {
	defer SetLogger(nil)

	core, logs := observer.New(zapcore.InfoLevel)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			Info("Listener bound", zap.Int("listener", i))
			Debug("Hello sent")
		}()
		go func() {
			defer wg.Done()
			SetLogger(zap.New(core))
		}()
	}
	wg.Wait()

	if GetLogger() == nil {
		t.Fatal("GetLogger() returned nil")
	}
	Info("after")
	if logs.FilterMessage("after").Len() != 1 {
		t.Error("entry not written to the last logger set")
	}
}

func TestInitializeWithOutput_File(t *testing.T) {
	defer SetLogger(nil)
	path := filepath.Join(t.TempDir(), "rmlink.log")

	if err := InitializeWithOutput("info", path); err != nil {
		t.Fatalf("InitializeWithOutput() error = %v", err)
	}
	Info("Console connected", zap.String("device", "ec:0b:ae:8c:43:f1"))
	Debug("hidden")
	_ = GetLogger().Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "Console connected") || !strings.Contains(out, "ec:0b:ae:8c:43:f1") {
		t.Errorf("log file = %q, want the info entry", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug entry written at info level")
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("file output should not carry color codes")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{" warn ", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"chatty", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogPacket_HexDumpOnlyAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogPacket("sent", "ec0bae8c43f1", 0x6a, 4444, []byte{0x5a, 0xa5})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["hex_dump"] != "5aa5" {
		t.Errorf("hex_dump = %v, want 5aa5", fields["hex_dump"])
	}
	if fields["command"] != "0x6a" {
		t.Errorf("command = %v, want 0x6a", fields["command"])
	}
}

func TestDumps(t *testing.T) {
	if got := asciiDump([]byte("Test\x001")); got != "Test.1" {
		t.Errorf("asciiDump = %q, want %q", got, "Test.1")
	}

	long := make([]byte, maxDumpBytes+10)
	if got := hexDump(long); !strings.HasSuffix(got, "...") || len(got) != maxDumpBytes*2+3 {
		t.Errorf("hexDump did not truncate: len=%d", len(got))
	}
	if hexDump(nil) != "" || asciiDump(nil) != "" {
		t.Error("empty input should produce empty dumps")
	}
}
