package assetstorage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestLocalStrategy_RoundTrip(t *testing.T) {
	s, err := NewLocalStrategy(t.TempDir(), "/assets")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	id, err := s.Write(context.Background(), "catalog/photo.jpg", strings.NewReader("jpeg bytes"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasSuffix(id, "/photo.jpg") {
		t.Fatalf("identifier = %q", id)
	}

	ok, err := s.Exists(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}

	rc, err := s.Read(context.Background(), id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "jpeg bytes" {
		t.Fatalf("data = %q", data)
	}

	if got := s.URL(id); got != "/assets/"+id {
		t.Fatalf("url = %q", got)
	}

	if err := s.Delete(context.Background(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(context.Background(), id); err != ErrNotFound {
		t.Fatalf("second delete = %v", err)
	}
	if _, err := s.Read(context.Background(), id); err != ErrNotFound {
		t.Fatalf("read after delete = %v", err)
	}
}

func TestLocalStrategy_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStrategy(t.TempDir(), "/assets")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	id, err := s.Write(context.Background(), "../../etc/passwd", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.Contains(id, "..") {
		t.Fatalf("identifier keeps traversal: %q", id)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":          "photo.jpg",
		"weird name!.png":    "weird-name-.png",
		"../../etc/passwd":   "passwd",
		"..":                 "file",
		"":                   "file",
		"logo (final).svg":   "logo--final-.svg",
	}
	for in, want := range cases {
		if got := sanitizeFileName(in); got != want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}
