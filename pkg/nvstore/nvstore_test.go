package nvstore

import (
	"bytes"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	if s.Size() != 64 {
		t.Fatalf("Size() = %d, want 64", s.Size())
	}
	if err := s.WriteAt(10, []byte("hello")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	got, err := s.ReadAt(10, 5)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("ReadAt = %q, want %q", got, "hello")
	}
	if _, err := s.ReadAt(60, 10); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory(64))
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFile(filepath.Join(dir, "nvram.bin"), 64)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestSQLitePage(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLitePage(filepath.Join(dir, "nvram.db"), 64)
	if err != nil {
		t.Fatalf("OpenSQLitePage: %v", err)
	}
	defer s.Close()
	testStore(t, s)
}
