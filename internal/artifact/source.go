// Package artifact exposes model files over HTTP and fetches them back for
// the loader. A Source points at one entry file (model.json, model.onnx, ...)
// and resolves sibling files such as weight shards relative to it.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// MaxArtifactBytes bounds a single fetched file.
const MaxArtifactBytes int64 = 512 << 20

// ErrInvalidPath is returned when a sibling name escapes the entry directory.
var ErrInvalidPath = errors.New("artifact: invalid path")

// Source reads an entry file and its siblings.
type Source interface {
	// Location is a printable form of the entry (URL or absolute path).
	Location() string
	// ReadEntry returns the bytes of the entry file.
	ReadEntry(ctx context.Context) ([]byte, error)
	// ReadSibling returns the bytes of a file relative to the entry's directory.
	ReadSibling(ctx context.Context, name string) ([]byte, error)
}

// Resolve returns an HTTP source for http(s) URLs and a file source for
// everything else. client may be nil.
func Resolve(location string, client *http.Client) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("artifact: empty location")
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("artifact: parse url: %w", err)
		}
		if client == nil {
			client = &http.Client{Timeout: 60 * time.Second}
		}
		return &httpSource{entry: u, client: client}, nil
	}
	p := strings.TrimPrefix(location, "file://")
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("artifact: abs path: %w", err)
	}
	return &fileSource{entry: abs}, nil
}

func cleanSibling(name string) (string, error) {
	if name == "" || path.IsAbs(name) || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	c := path.Clean(name)
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return c, nil
}

type fileSource struct {
	entry string
}

func (s *fileSource) Location() string { return s.entry }

func (s *fileSource) ReadEntry(ctx context.Context) ([]byte, error) {
	return readFile(ctx, s.entry)
}

func (s *fileSource) ReadSibling(ctx context.Context, name string) ([]byte, error) {
	c, err := cleanSibling(name)
	if err != nil {
		return nil, err
	}
	return readFile(ctx, filepath.Join(filepath.Dir(s.entry), filepath.FromSlash(c)))
}

func readFile(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f, p)
}

type httpSource struct {
	entry  *url.URL
	client *http.Client
}

func (s *httpSource) Location() string { return s.entry.String() }

func (s *httpSource) ReadEntry(ctx context.Context) ([]byte, error) {
	return s.get(ctx, s.entry)
}

func (s *httpSource) ReadSibling(ctx context.Context, name string) ([]byte, error) {
	c, err := cleanSibling(name)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return s.get(ctx, s.entry.ResolveReference(ref))
}

func (s *httpSource) get(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}
	return readLimited(resp.Body, u.String())
}

func readLimited(r io.Reader, name string) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(b)) > MaxArtifactBytes {
		return nil, fmt.Errorf("read %s: larger than %d bytes", name, MaxArtifactBytes)
	}
	return b, nil
}
