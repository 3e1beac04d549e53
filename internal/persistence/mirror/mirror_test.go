package mirror

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type flakyUploader struct {
	mu       sync.Mutex
	failures int
	calls    int
	keys     []string
}

func (f *flakyUploader) Put(_ context.Context, key string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("unavailable")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_RetriesThenSucceeds(t *testing.T) {
	up := &flakyUploader{failures: 2}
	m := New(up, Options{Prefix: "/backups/", Backoff: time.Millisecond})
	m.Enqueue("WORLD/saves/000000000100.sbs.zst", []byte("save"))
	m.Close()

	s := m.Stats()
	if s.UploadSuccessTotal != 1 || s.UploadFailTotal != 0 || up.calls != 3 {
		t.Fatalf("stats %+v calls %d", s, up.calls)
	}
	if len(up.keys) != 1 || up.keys[0] != "backups/WORLD/saves/000000000100.sbs.zst" {
		t.Fatalf("keys %v", up.keys)
	}
}

func TestMirror_GivesUpAfterMaxAttempts(t *testing.T) {
	up := &flakyUploader{failures: 100}
	m := New(up, Options{MaxAttempts: 2, Backoff: time.Millisecond})
	m.Enqueue("a", nil)
	m.Close()
	if s := m.Stats(); s.UploadFailTotal != 1 || s.LastErrorUnix == 0 || up.calls != 2 {
		t.Fatalf("stats %+v calls %d", s, up.calls)
	}
}

type blockingUploader struct{ release chan struct{} }

func (b blockingUploader) Put(context.Context, string, []byte) error {
	<-b.release
	return nil
}

func TestMirror_DropsWhenQueueFull(t *testing.T) {
	up := blockingUploader{release: make(chan struct{})}
	m := New(up, Options{QueueCapacity: 1})
	// One job may already sit in the worker, one fits the queue, the rest drop.
	for i := 0; i < 5; i++ {
		m.Enqueue("k", nil)
	}
	if s := m.Stats(); s.DroppedTotal < 3 || s.EnqueuedTotal != 5 {
		t.Fatalf("stats %+v", s)
	}
	close(up.release)
	m.Close()
	m.Enqueue("late", nil)
	if m.Stats().EnqueuedTotal != 5 {
		t.Fatalf("enqueue after Close must be ignored")
	}
}

func TestS3Client_SignsPut(t *testing.T) {
	var gotPath, gotAuth, gotBody, gotHash string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotHash = r.Header.Get("x-amz-content-sha256")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewS3Client(S3Config{Endpoint: srv.URL, Bucket: "saves", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatal(err)
	}
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	if err := c.Put(context.Background(), "/WORLD/my save.sbs.zst", []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if gotPath != "/saves/WORLD/my%20save.sbs.zst" || gotBody != "payload" {
		t.Fatalf("path %q body %q", gotPath, gotBody)
	}
	if gotHash != sha256Hex([]byte("payload")) {
		t.Fatalf("payload hash %q", gotHash)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20260102/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=") {
		t.Fatalf("authorization %q", gotAuth)
	}
}

func TestS3Client_ReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()
	c, err := NewS3Client(S3Config{Endpoint: srv.URL, Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put(context.Background(), "k", nil); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("want status error, got %v", err)
	}
	if _, err := NewS3Client(S3Config{Endpoint: srv.URL}); err == nil {
		t.Fatalf("missing credentials must be rejected")
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"/a/b":      "a/b",
		`a\b`:       "a/b",
		"a/../../b": "b",
		"  ":        "",
		"/":         "",
		"x/./y//z":  "x/y/z",
	}
	for in, want := range cases {
		if got := normalizeKey(in); got != want {
			t.Errorf("normalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}
