// Package canvasassets provides an in-memory stand-in for the object
// storage boundary spec.md §1 puts out of this core's scope
// (canvasrun.AssetStore/URLFetcher, canvas/batch.AssetURLResolver).
// Real deployments swap this for an S3/GCS-backed implementation of
// the same three interfaces; canvasengine-server wires this one so
// the representative HTTP surface works end to end without external
// dependencies.
package canvasassets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/flowcanvas/canvasengine/canvas"
)

// Store is a content-addressed, in-memory byte store. It satisfies
// canvasrun.AssetStore, canvas/resolver.MediaStore, and
// canvas/batch.AssetURLResolver.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte

	// httpClient fetches bytes for FetchURL (the "url" run-payload
	// variant).
	httpClient *http.Client
}

// New builds an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte), httpClient: http.DefaultClient}
}

// PutAsset stores data under a content-derived key and records a
// canvas.FileAsset row via no external persistence — the caller
// (canvasrun.ResolvePayload) still owns writing the returned FileAsset
// into canvasstore via Store.CreateFileAsset.
func (s *Store) PutAsset(_ context.Context, data []byte, mimeType string) (canvas.FileAsset, error) {
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])

	s.mu.Lock()
	s.data[key] = data
	s.mu.Unlock()

	return canvas.FileAsset{ID: canvas.NewServerID(), Key: key, Bucket: "memory", MimeType: mimeType}, nil
}

// FetchAsset implements resolver.MediaStore: looks up bytes by ref.Key.
func (s *Store) FetchAsset(_ context.Context, ref canvas.FileReference) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[ref.Key]
	if !ok {
		return nil, fmt.Errorf("canvasassets: no data stored for key %s", ref.Key)
	}
	return data, nil
}

// ResolveURL implements batch.AssetURLResolver: returns a
// "memory://<bucket>/<key>?mime=<mimeType>" URL naming the stored
// bytes, since this in-memory store has no public endpoint of its own
// to point a client at. The URL is not fetchable over HTTP.
func (s *Store) ResolveURL(_ context.Context, ref canvas.FileReference) (string, error) {
	s.mu.RLock()
	_, ok := s.data[ref.Key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("canvasassets: no data stored for key %s", ref.Key)
	}
	return fmt.Sprintf("memory://%s/%s?mime=%s", ref.Bucket, ref.Key, ref.MimeType), nil
}

// FetchURL implements canvasrun.URLFetcher by issuing a plain HTTP GET.
func (s *Store) FetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
