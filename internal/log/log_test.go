package log

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestFromContext(t *testing.T) {
	fallback := zap.NewNop().Sugar()
	scoped := zap.NewNop().Sugar().With("request_id", "abc")

	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Error("expected fallback logger for bare context")
	}
	if got := FromContext(NewContext(context.Background(), scoped), fallback); got != scoped {
		t.Error("expected context logger")
	}
	if got := FromContext(context.Background(), nil); got == nil {
		t.Error("expected package logger when no fallback is given")
	}
}

func TestInitWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remoteflow.log")
	if err := InitWithFile(false, FileOptions{Path: path}); err != nil {
		t.Fatalf("InitWithFile: %v", err)
	}
	Infow("flow period detected", "device", "WM-0042")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "flow period detected") || !strings.Contains(string(data), "WM-0042") {
		t.Errorf("log file missing entry: %s", data)
	}
}
