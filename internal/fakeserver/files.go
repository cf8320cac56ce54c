package fakeserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"

	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/golang/glog"
)

const (
	filesPrefix   = "/files/"
	maxUploadSize = 10 << 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fileKey(uri string) string {
	return path.Base(uri)
}

// Upload stores the multipart "file" field and answers with an absolute
// URI under /files/.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Message: "file is required"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Message: "failed to read file"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	key := s.store.PutFile(header.Filename, contentType, data)

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	glog.V(1).Infof("[fake]stored %s (%d bytes)", key, len(data))
	writeJSON(w, http.StatusCreated, dto.UploadResponse{URI: scheme + "://" + r.Host + filesPrefix + key})
}

func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request) {
	contentType, data, err := s.store.File(r.PathValue("key"))
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			writeJSON(w, e.Status, dto.ErrorResponse{Message: e.Message})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Message: "internal error"})
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}
