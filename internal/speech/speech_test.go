package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"empty", "   ", 10, nil},
		{"fits", "hello world", 20, []string{"hello world"}},
		{"word boundary", "aaa bbb ccc", 7, []string{"aaa bbb", "ccc"}},
		{"long word cut", "abcdefghij xy", 4, []string{"abcd", "efgh", "ij", "xy"}},
		{"collapses spaces", "a   b\tc", 10, []string{"a b c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitText(tt.text, tt.max)
			if len(got) != len(tt.want) {
				t.Fatalf("splitText = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHTTPSynthesizer_ConcatenatesChunksInOrder(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("tl") != "en" || q.Get("client") != "tw-ob" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		idx, _ := strconv.Atoi(q.Get("idx"))
		w.Write([]byte{byte('A' + idx)})
	}))
	defer srv.Close()

	s := NewHTTPSynthesizer(srv.URL, "", srv.Client())
	text := strings.Repeat("word ", 60) // 300 characters
	audio, err := s.Synthesize(context.Background(), text)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	n := int(calls.Load())
	if n < 3 {
		t.Fatalf("calls = %d, want at least 3", n)
	}
	if len(audio) != n {
		t.Fatalf("audio length = %d, want %d", len(audio), n)
	}
	for i, b := range audio {
		if b != byte('A'+i) {
			t.Errorf("audio[%d] = %c, want %c", i, b, 'A'+i)
		}
	}
	if s.Format() != "mp3" {
		t.Errorf("Format = %q", s.Format())
	}
}

func TestHTTPSynthesizer_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewHTTPSynthesizer(srv.URL, "en", srv.Client())
	if _, err := s.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for upstream 429")
	}
}

func TestHTTPSynthesizer_EmptyText(t *testing.T) {
	s := NewHTTPSynthesizer("http://127.0.0.1:1", "en", nil)
	if _, err := s.Synthesize(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestNop(t *testing.T) {
	if _, err := (Nop{}).Synthesize(context.Background(), "hi"); !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestCommandSynthesizer_MissingBinary(t *testing.T) {
	c := NewCommandSynthesizer("frontdesk-no-such-tts-binary", "")
	if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for missing command")
	}
	if c.Format() != "wav" {
		t.Errorf("Format = %q", c.Format())
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		caller string
		want   string
	}{
		{"caller-1", "caller-1.mp3"},
		{"../../etc/passwd", "______etc_passwd.mp3"},
		{"a b", "a_b.mp3"},
		{"", "caller.mp3"},
	}
	for _, tt := range tests {
		if got := FileName(tt.caller, "mp3"); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.caller, got, tt.want)
		}
	}
}

func TestAudioStore_SaveOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audio")
	store, err := NewAudioStore(dir)
	if err != nil {
		t.Fatalf("NewAudioStore: %v", err)
	}

	name, err := store.Save("c1", "mp3", []byte("first"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "c1.mp3" {
		t.Errorf("name = %q", name)
	}
	if _, err := store.Save("c1", "mp3", []byte("second")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path, err := store.Path(name)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("data = %q, want second", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestAudioStore_PathRejectsTraversal(t *testing.T) {
	store, err := NewAudioStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "../secret", "a/b.mp3", ".hidden", "..", "x.mp3.123.tmp"} {
		if _, err := store.Path(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Path(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestEnsureReady(t *testing.T) {
	var out strings.Builder

	if err := EnsureReady(context.Background(), Nop{}, &out); err != nil {
		t.Errorf("Nop: %v", err)
	}
	if err := EnsureReady(context.Background(), NewCommandSynthesizer("frontdesk-no-such-tts-binary", ""), &out); err == nil {
		t.Error("expected error for missing command")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3"))
	}))
	defer srv.Close()
	if err := EnsureReady(context.Background(), NewHTTPSynthesizer(srv.URL, "en", srv.Client()), &out); err != nil {
		t.Errorf("http: %v", err)
	}
	if !strings.Contains(out.String(), "speech: ready") {
		t.Errorf("output = %q", out.String())
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	if err := EnsureReady(context.Background(), NewHTTPSynthesizer(failing.URL, "en", failing.Client()), &out); err == nil {
		t.Error("expected warm-up error")
	}
}
