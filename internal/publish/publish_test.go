package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, videoID, file, want string
	}{
		{"subtitles", "abc", "/work/abc/abc.bi.srt", "subtitles/abc/abc.bi.srt"},
		{"/subtitles/", "abc", "abc.bi.vtt", "subtitles/abc/abc.bi.vtt"},
		{"", "abc", "/tmp/abc.bi.srt", "abc/abc.bi.srt"},
	}
	for _, tt := range tests {
		if got := ObjectKey(tt.prefix, tt.videoID, tt.file); got != tt.want {
			t.Errorf("ObjectKey(%q, %q, %q) = %q, want %q", tt.prefix, tt.videoID, tt.file, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.srt":      "application/x-subrip; charset=utf-8",
		"a.VTT":      "text/vtt; charset=utf-8",
		"a.run.json": "application/json",
		"a.bin":      "application/octet-stream",
	}
	for file, want := range tests {
		if got := ContentType(file); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", file, got, want)
		}
	}
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	if _, err := New(Options{Bucket: "subs"}, nil); err == nil {
		t.Error("expected error without endpoint")
	}
	if _, err := New(Options{Endpoint: "localhost:9000"}, nil); err == nil {
		t.Error("expected error without bucket")
	}
	if _, err := New(Options{Endpoint: "localhost:9000", Bucket: "subs"}, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// Integration test: only runs against a live MinIO/S3 endpoint
func TestPublishIntegration(t *testing.T) {
	endpoint := os.Getenv("BILINGO_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("BILINGO_TEST_S3_ENDPOINT not set; skipping integration test")
	}

	p, err := New(Options{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("BILINGO_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("BILINGO_TEST_S3_SECRET_KEY"),
		Bucket:    "bilingo-test",
		Prefix:    "it",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(t.TempDir(), "demo.bi.srt")
	if err := os.WriteFile(file, []byte("1\n00:00:00,000 --> 00:00:01,000\nHi.\n你好。\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	keys, err := p.Publish(ctx, "demo", []string{file})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(keys) != 1 || keys[0] != "it/demo/demo.bi.srt" {
		t.Errorf("unexpected keys %q", keys)
	}
}
