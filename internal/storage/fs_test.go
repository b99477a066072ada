package storage

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func TestFSStore_PutGetDelete(t *testing.T) {
	base := t.TempDir()
	s, err := NewFSStore(base)
	if err != nil {
		t.Fatal(err)
	}
	key := AnswerKey("att-1", "q-1", "essay.pdf")
	if key != "attempts/att-1/q-1/essay.pdf" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := s.Put(key, strings.NewReader("hello")); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := s.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "hello" {
		t.Fatalf("got %q", b)
	}
	if err := s.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(key); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestFSStore_KeysStayInsideBase(t *testing.T) {
	base := t.TempDir()
	s, _ := NewFSStore(base)
	if _, err := s.Put("../../escape.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	p, _ := s.resolve("../../escape.txt")
	if !strings.HasPrefix(p, filepath.Clean(base)) {
		t.Fatalf("resolved %q outside %q", p, base)
	}
	if _, err := s.Put("", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestAnswerKey_StripsDirectories(t *testing.T) {
	if got := AnswerKey("a", "q", `..\..\evil.exe`); got != "attempts/a/q/evil.exe" {
		t.Fatalf("got %q", got)
	}
	if got := AnswerKey("a", "q", ""); got != "attempts/a/q/upload" {
		t.Fatalf("got %q", got)
	}
}

func TestAnswerPrefix_IsPerAnswer(t *testing.T) {
	key := AnswerKey("a10", "q", "f.txt")
	if !strings.HasPrefix(key, AnswerPrefix("a10", "q")) {
		t.Fatalf("%q not under its own prefix", key)
	}
	if strings.HasPrefix(key, AnswerPrefix("a1", "q")) {
		t.Fatalf("%q matched another attempt's prefix", key)
	}
}
