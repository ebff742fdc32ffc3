package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// writeList writes a cached list payload with a content hash ETag and
// answers a matching If-None-Match with 304.
func writeList(w http.ResponseWriter, r *http.Request, body []byte) {
	etag := `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
	h := w.Header()
	h["Etag"] = []string{etag}
	h.Add("Vary", "Accept")
	h.Add("Vary", "Authorization")
	if etagMatch(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

// etagMatch reports whether an If-None-Match header lists etag. Weak
// validators compare equal to their strong form.
func etagMatch(header, etag string) bool {
	if header == "" {
		return false
	}
	for candidate := range strings.SplitSeq(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
