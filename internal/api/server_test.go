package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dev-protocol/ar-io-node/internal/bundles"
	"github.com/dev-protocol/ar-io-node/internal/data"
	"github.com/dev-protocol/ar-io-node/internal/models"
)

// stubSource serves fixed byte blobs by id.
type stubSource struct {
	objects map[string][]byte
}

func (s *stubSource) GetData(_ context.Context, id string) (*data.Result, error) {
	b, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("get data %s: %w", id, data.ErrNoDataSource)
	}
	return &data.Result{
		Stream:     io.NopCloser(bytes.NewReader(b)),
		Size:       int64(len(b)),
		SourceType: "stub",
	}, nil
}

// stubUnbundler accepts everything.
type stubUnbundler struct{}

func (stubUnbundler) QueueItem(bundles.UnbundleTask, bool) bool { return true }

func testID(b byte) string {
	return models.EncodeID(bytes.Repeat([]byte{b}, models.IDLength))
}

func newTestServer(t *testing.T, objects map[string][]byte, adminKey string) http.Handler {
	t.Helper()
	source := &stubSource{objects: objects}
	importer := bundles.NewImporter(1, 1, source, stubUnbundler{})
	return NewServer(source, importer, adminKey).Handler()
}

func TestRawServesExactBytes(t *testing.T) {
	id := testID(1)
	body := []byte("hello, permanent storage")
	h := newTestServer(t, map[string][]byte{id: body}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/raw/"+id, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != fmt.Sprint(len(body)) {
		t.Errorf("expected content-length %d, got %q", len(body), got)
	}
	want := sha256.Sum256(body)
	got := sha256.Sum256(rec.Body.Bytes())
	if got != want {
		t.Errorf("body digest mismatch: got %s, want %s",
			hex.EncodeToString(got[:]), hex.EncodeToString(want[:]))
	}
}

func TestRawInvalidID(t *testing.T) {
	h := newTestServer(t, nil, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/raw/not-an-id", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRawNotFound(t *testing.T) {
	h := newTestServer(t, nil, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/raw/"+testID(2), nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestNonManifestServedAsRawBytes(t *testing.T) {
	id := testID(3)
	body := []byte(`{"not": "a manifest"}`)
	h := newTestServer(t, map[string][]byte{id: body}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+id, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), body) {
		t.Errorf("expected body %q, got %q", body, rec.Body.Bytes())
	}
}

func TestManifestRedirectsToIndex(t *testing.T) {
	manifestID := testID(4)
	doc := []byte(`{
		"manifest": "arweave/paths",
		"version": "0.1.0",
		"index": {"path": "index.html"},
		"paths": {"index.html": {"id": "` + testID(5) + `"}}
	}`)
	h := newTestServer(t, map[string][]byte{manifestID: doc}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+manifestID, nil))

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("expected 301, got %d", rec.Code)
	}
	want := "/" + manifestID + "/index.html"
	if got := rec.Header().Get("Location"); got != want {
		t.Errorf("expected redirect to %q, got %q", want, got)
	}
}

func TestManifestWithoutIndex(t *testing.T) {
	manifestID := testID(6)
	doc := []byte(`{"manifest": "arweave/paths", "version": "0.1.0", "paths": {}}`)
	h := newTestServer(t, map[string][]byte{manifestID: doc}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+manifestID, nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestManifestResolvesPath(t *testing.T) {
	manifestID := testID(7)
	itemID := testID(8)
	itemBody := []byte("<html>hi</html>")
	doc := []byte(`{
		"manifest": "arweave/paths",
		"version": "0.1.0",
		"index": {"path": "index.html"},
		"paths": {"index.html": {"id": "` + itemID + `"}}
	}`)
	h := newTestServer(t, map[string][]byte{
		manifestID: doc,
		itemID:     itemBody,
	}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+manifestID+"/index.html", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), itemBody) {
		t.Errorf("expected item body %q, got %q", itemBody, rec.Body.Bytes())
	}
}

func TestManifestFallback(t *testing.T) {
	manifestID := testID(9)
	fallbackID := testID(10)
	fallbackBody := []byte("fallback page")
	doc := []byte(`{
		"manifest": "arweave/paths",
		"version": "0.1.0",
		"paths": {},
		"fallback": {"id": "` + fallbackID + `"}
	}`)
	h := newTestServer(t, map[string][]byte{
		manifestID: doc,
		fallbackID: fallbackBody,
	}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+manifestID+"/missing.html", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), fallbackBody) {
		t.Errorf("expected fallback body %q, got %q", fallbackBody, rec.Body.Bytes())
	}
}

func TestManifestPathWithoutFallback(t *testing.T) {
	manifestID := testID(11)
	doc := []byte(`{"manifest": "arweave/paths", "version": "0.1.0", "paths": {}}`)
	h := newTestServer(t, map[string][]byte{manifestID: doc}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+manifestID+"/missing.html", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestQueueBundleDisabledWithoutKey(t *testing.T) {
	h := newTestServer(t, nil, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/queue-bundle",
		strings.NewReader(`{"id": "`+testID(12)+`"}`))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when admin API is disabled, got %d", rec.Code)
	}
}

func TestQueueBundleRejectsBadToken(t *testing.T) {
	h := newTestServer(t, nil, "secret")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/queue-bundle",
		strings.NewReader(`{"id": "`+testID(13)+`"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestQueueBundleAccepts(t *testing.T) {
	h := newTestServer(t, nil, "secret")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/queue-bundle",
		strings.NewReader(`{"id": "`+testID(14)+`"}`))
	req.Header.Set("Authorization", "Bearer secret")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var resp struct {
		ID     string `json:"id"`
		Queued bool   `json:"queued"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Queued {
		t.Error("expected queued=true")
	}
}

func TestQueueBundleBackpressure(t *testing.T) {
	h := newTestServer(t, nil, "secret")

	// The importer queue holds one entry and no workers are running, so a
	// second non-prioritized request must be turned away.
	for i, want := range []int{http.StatusAccepted, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/queue-bundle",
			strings.NewReader(`{"id": "`+testID(byte(20+i))+`", "prioritized": false}`))
		req.Header.Set("Authorization", "Bearer secret")
		h.ServeHTTP(rec, req)

		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rec.Code)
		}
	}
}

func TestQueueBundleInvalidID(t *testing.T) {
	h := newTestServer(t, nil, "secret")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/queue-bundle",
		strings.NewReader(`{"id": "nope"}`))
	req.Header.Set("Authorization", "Bearer secret")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
