package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondData wraps payload in the {"data": ...} envelope.
func respondData(w http.ResponseWriter, status int, payload interface{}) {
	writeJSON(w, status, map[string]interface{}{"data": payload})
}

// respondOK acknowledges an operation that returns no data.
func respondOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// decodeBody reads a JSON request body into dst. A body that does not
// parse is a malformed request, not a server error.
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return malformedf("invalid request body: %v", err)
	}
	return nil
}

// csvAttachment sets download headers for a CSV export and returns the
// writer records should go to, gzip-compressed when the client advertises
// support for it. The returned closer must be called after the last write.
func csvAttachment(w http.ResponseWriter, r *http.Request, filename string) (io.Writer, func()) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		return gz, func() { _ = gz.Close() }
	}
	return w, func() {}
}
