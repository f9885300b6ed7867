package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir(), "http://localhost:8080/assets/")
	if err != nil {
		t.Fatal(err)
	}
	url, err := s.Upload(ctx, []byte("png bytes"), "images/1_fig.png", "image/png", true)
	if err != nil {
		t.Fatal(err)
	}
	if url != "http://localhost:8080/assets/images/1_fig.png" {
		t.Fatalf("url = %q", url)
	}
	if ok, err := s.Exists(ctx, "images/1_fig.png"); err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}
	rc, ct, err := s.Get(ctx, "images/1_fig.png")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "png bytes" || ct != "image/png" {
		t.Fatalf("got %q (%s)", b, ct)
	}
	if err := s.Delete(ctx, "images/1_fig.png"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "images/1_fig.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete = %v", err)
	}
	if ok, _ := s.Exists(ctx, "images/1_fig.png"); ok {
		t.Fatal("object still exists")
	}
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	s, _ := NewFSStore(t.TempDir(), "")
	for _, key := range []string{"", "../x.png", "a/../../x.png", `images\x.png`} {
		if _, err := s.Upload(context.Background(), []byte("x"), key, "", true); err == nil {
			t.Errorf("key %q accepted", key)
		}
	}
	if _, _, err := s.Get(context.Background(), "images/none.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing = %v", err)
	}
}

func TestGCSPublicURL(t *testing.T) {
	cases := []struct {
		store GCSStore
		want  string
	}{
		{GCSStore{bucket: "bank"}, "https://storage.googleapis.com/bank/images/a.png"},
		{GCSStore{bucket: "bank", cdnDomain: "cdn.example.com"}, "https://cdn.example.com/images/a.png"},
		{GCSStore{bucket: "bank", baseURL: "http://localhost:4443"}, "http://localhost:4443/bank/images/a.png"},
	}
	for _, tc := range cases {
		if got := tc.store.URL("/images/a.png"); got != tc.want {
			t.Errorf("URL = %q, want %q", got, tc.want)
		}
	}
}

func TestContentTypeForKey(t *testing.T) {
	if ct := contentTypeForKey("x.unknownext"); ct != "application/octet-stream" {
		t.Fatalf("ct = %q", ct)
	}
	if ct := contentTypeForKey("x.PNG"); !strings.HasPrefix(ct, "image/png") {
		t.Fatalf("ct = %q", ct)
	}
}
