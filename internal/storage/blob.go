// Package storage keeps uploaded media objects on local disk or in Google
// Cloud Storage.
package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"
)

var ErrNotFound = errors.New("object not found")

// ObjectStore is where processed media ends up. Upload returns the URL the
// object is served from.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, key, mimeType string, public bool) (string, error)
	URL(key string) string
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Reader is implemented by stores that can stream objects back, used by
// the dev /assets route.
type Reader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// cleanKey normalises a key and rejects anything that would leave the
// store's root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("empty key")
	}
	if strings.Contains(key, `\`) {
		return "", errors.New("backslash in key")
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", errors.New("key escapes store root")
	}
	return c, nil
}

func contentTypeForKey(key string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(key))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
