// Package media serves message attachments over HTTP, backed by GridFS.
package media

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"gorelay/internal/common"
	"gorelay/internal/dbmongo"
)

const maxUploadBytes = 32 << 20 // 32 MiB

type Handler struct {
	storage *dbmongo.MediaStorage
}

func NewHandler(storage *dbmongo.MediaStorage) *Handler {
	return &Handler{storage: storage}
}

// Register mounts the media routes on an authenticated router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/media", h.upload).Methods(http.MethodPost)
	r.HandleFunc("/media/{fileID}", h.download).Methods(http.MethodGet)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "malformed upload", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	mediaFile, err := h.storage.UploadFile(r.Context(), header.Filename, mimeType, userID, file)
	if err != nil {
		log.Printf("media upload failed: %v", err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(mediaFile); err != nil {
		log.Printf("failed to encode media response: %v", err)
	}
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileID"]

	fileReader, mediaFile, err := h.storage.DownloadFile(r.Context(), fileID)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(mediaFile.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", mediaFile.Size))

	if _, err := io.Copy(w, fileReader); err != nil {
		log.Printf("error streaming file %s: %v", fileID, err)
	}
}

func contentTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".ogg":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
