package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestForAddsPrefix(t *testing.T) {
	var buf bytes.Buffer
	base := log.New(&buf, "", 0)

	For(base, "scene").Printf("activated")

	if got := buf.String(); got != "[scene] activated\n" {
		t.Errorf("output = %q, want %q", got, "[scene] activated\n")
	}
}

func TestForNilBase(t *testing.T) {
	l := For(nil, "texture")
	if l.Prefix() != "[texture] " {
		t.Errorf("Prefix() = %q", l.Prefix())
	}
	if l.Writer() != os.Stderr {
		t.Error("nil base should write to stderr")
	}
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wisp.log")
	l := New(Config{File: path, MaxSizeMB: 1, MaxBackups: 1, Quiet: true})

	For(l.Logger, "daemon").Printf("hello")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "[daemon] hello") {
		t.Errorf("log file = %q, want it to contain the message", data)
	}
}

func TestQuietWithoutFileDiscards(t *testing.T) {
	l := New(Config{Quiet: true})
	l.Printf("dropped")
	if err := l.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
