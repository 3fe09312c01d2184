package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelInfo)

	// Debug should be filtered
	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should be filtered at INFO level")
	}

	logger.Info("info message")
	if buf.Len() == 0 {
		t.Error("info message should be logged")
	}

	output := buf.String()
	if !strings.Contains(output, "INFO") {
		t.Error("log should contain INFO level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("log should contain the message")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New().WithComponent("registry.zk")
	logger.SetOutput(&buf)

	logger.Info("test message")

	if !strings.Contains(buf.String(), "[registry.zk]") {
		t.Errorf("expected component in log, got: %s", buf.String())
	}
}

func TestLogger_FieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Info("lookup", map[string]interface{}{
		"service":   "com.example.Echo",
		"providers": 2,
	})

	output := buf.String()
	if !strings.Contains(output, "providers=2 service=com.example.Echo") {
		t.Errorf("expected sorted fields, got: %s", output)
	}
}

func TestLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := New().WithComponent("test")
	logger.SetOutput(&buf)

	logger.Info("hello world", map[string]interface{}{"key": "value"})

	output := buf.String()
	// Example: INFO  2026-02-05T04:00:00.000Z [test] hello world key=value
	if !strings.HasPrefix(output, "INFO ") {
		t.Errorf("expected line to start with 'INFO ', got: %s", output)
	}
	if !strings.HasSuffix(output, "hello world key=value\n") {
		t.Errorf("unexpected line: %s", output)
	}
}

func TestLogger_Printf(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Printf("connected to %s", "127.0.0.1:2181")
	if buf.Len() > 0 {
		t.Error("Printf logs at DEBUG and should be filtered at INFO")
	}

	logger.SetLevel(LevelDebug)
	logger.Printf("connected to %s", "127.0.0.1:2181")
	if !strings.Contains(buf.String(), "connected to 127.0.0.1:2181") {
		t.Errorf("got: %s", buf.String())
	}
}

func TestLogger_RegistryEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelDebug)

	logger.Registered("local://127.0.0.1:0?interface=Echo")
	logger.LookedUp("Echo", 1, 5*time.Millisecond)
	logger.WatchEvent("/rpckit/Echo/providers", "EventNodeChildrenChanged")
	logger.ExtensionCreated("registry.RegistryFactory", "local")
	logger.Unregistered("local://127.0.0.1:0?interface=Echo")
	logger.OperationFailed("register", errors.New("boom"), nil)

	output := buf.String()
	for _, want := range []string{
		"registered url=local://127.0.0.1:0?interface=Echo",
		"lookup duration=5ms providers=1 service=Echo",
		"watch_event path=/rpckit/Echo/providers",
		"extension_created capability=registry.RegistryFactory extension=local",
		"unregistered url=",
		"ERROR",
		"error=boom op=register",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	custom := New()
	SetDefault(custom)
	if Default() != custom {
		t.Error("SetDefault should replace the process logger")
	}

	SetDefault(nil)
	if Default() != custom {
		t.Error("SetDefault(nil) should be ignored")
	}
}
