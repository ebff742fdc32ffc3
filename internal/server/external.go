package server

import "net/http"

// handleExternalDoc relays the upstream document with its status code.
func (s *server) handleExternalDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.External.RepoDocument(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if doc.ContentType != "" {
		w.Header().Set("Content-Type", doc.ContentType)
	} else {
		w.Header()["Content-Type"] = jsonCT
	}
	w.WriteHeader(doc.StatusCode)
	w.Write(doc.Body)
}
