package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/dev-protocol/ar-io-node/internal/data"
	"github.com/dev-protocol/ar-io-node/internal/logging"
	"github.com/dev-protocol/ar-io-node/internal/models"
)

// manifestContentType identifies a path manifest document.
const manifestContentType = "arweave/paths"

// maxManifestSize caps how much of an object is buffered while deciding
// whether it is a manifest. Larger objects are served as plain data.
const maxManifestSize = 4 << 20

// manifest is the path-manifest document format: a map from relative
// paths to the content identifiers that serve them.
type manifest struct {
	Manifest string `json:"manifest"`
	Version  string `json:"version"`
	Index    struct {
		Path string `json:"path"`
	} `json:"index"`
	Paths map[string]struct {
		ID string `json:"id"`
	} `json:"paths"`
	Fallback struct {
		ID string `json:"id"`
	} `json:"fallback"`
}

// handleData serves /{id} and /{id}/{path...}. Manifest objects are
// resolved: a bare manifest id redirects to its index path, a manifest
// path serves the item it maps to, and anything else is served as raw
// bytes.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	subPath := r.PathValue("path")
	if !models.IsValidID(id) {
		s.sendError(w, http.StatusNotFound, "not found")
		return
	}

	res, err := s.dataSource.GetData(r.Context(), id)
	if err != nil {
		logging.Debug("data not retrievable", zap.String("id", id), zap.Error(err))
		s.sendError(w, http.StatusNotFound, "data not found")
		return
	}
	defer res.Stream.Close()

	m, buffered, ok := sniffManifest(res)
	if !ok {
		// Not a manifest: serve the buffered prefix plus the rest.
		w.Header().Set("Content-Type", "application/octet-stream")
		if res.Size >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
		}
		rest := io.MultiReader(bytes.NewReader(buffered), res.Stream)
		if _, err := copyStream(w, rest); err != nil {
			logging.Error("response stream failed", zap.String("id", id), zap.Error(err))
		}
		return
	}

	if subPath == "" {
		if m.Index.Path == "" {
			s.sendError(w, http.StatusNotFound, "manifest has no index")
			return
		}
		http.Redirect(w, r, "/"+id+"/"+m.Index.Path, http.StatusMovedPermanently)
		return
	}

	entry, found := m.Paths[subPath]
	itemID := entry.ID
	if !found {
		itemID = m.Fallback.ID
	}
	if itemID == "" || !models.IsValidID(itemID) {
		s.sendError(w, http.StatusNotFound, "path not found in manifest")
		return
	}

	itemRes, err := s.dataSource.GetData(r.Context(), itemID)
	if err != nil {
		logging.Debug("manifest item not retrievable",
			zap.String("manifest", id),
			zap.String("id", itemID),
			zap.Error(err))
		s.sendError(w, http.StatusNotFound, "data not found")
		return
	}
	defer itemRes.Stream.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if itemRes.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(itemRes.Size, 10))
	}
	s.streamBody(w, itemRes, itemID)
}

// sniffManifest buffers a small object and tries to parse it as a path
// manifest. On success the stream has been fully consumed into the
// returned manifest; on failure the buffered bytes are returned so the
// caller can still serve them.
func sniffManifest(res *data.Result) (*manifest, []byte, bool) {
	if res.Size > maxManifestSize {
		return nil, nil, false
	}
	buffered, err := io.ReadAll(io.LimitReader(res.Stream, maxManifestSize+1))
	if err != nil {
		return nil, buffered, false
	}
	if len(buffered) > maxManifestSize {
		return nil, buffered, false
	}

	var m manifest
	if err := json.Unmarshal(buffered, &m); err != nil || m.Manifest != manifestContentType {
		return nil, buffered, false
	}
	return &m, buffered, true
}

// copyStream copies with a modest buffer; kept separate so handlers
// share one code path for body streaming.
func copyStream(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	return io.CopyBuffer(dst, src, buf)
}
