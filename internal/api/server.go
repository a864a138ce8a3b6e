// Package api exposes the transfer service over a small JSON HTTP API.
package api

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/TeleVault/internal/metadata"
	"github.com/jaywantadh/TeleVault/internal/transfer"
)

// Server serves the TeleVault API for one transfer service.
type Server struct {
	svc    *transfer.Service
	logger *logrus.Logger
}

// NewServer creates a new API server
func NewServer(svc *transfer.Service, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{svc: svc, logger: logger}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := router.PathPrefix(BasePath).Subrouter()
	v1.HandleFunc("/manifests", s.handleListManifests).Methods(http.MethodGet)
	v1.HandleFunc("/manifests/{id}", s.handleGetManifest).Methods(http.MethodGet)
	v1.HandleFunc("/manifests/{id}", s.handleDeleteManifest).Methods(http.MethodDelete)
	v1.HandleFunc("/uploads", s.handleUpload).Methods(http.MethodPost)
	v1.HandleFunc("/downloads", s.handleDownload).Methods(http.MethodPost)
	v1.HandleFunc("/transfers", s.handleTransfers).Methods(http.MethodGet)
	v1.HandleFunc("/transfers/{id}", s.handleTransfer).Methods(http.MethodGet)

	router.Use(s.logRequests)
	return router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Debug("request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListManifests handles GET /api/v1/manifests
func (s *Server) handleListManifests(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.List()
	if err != nil {
		WriteTransferError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, list)
}

// handleGetManifest handles GET /api/v1/manifests/{id}
func (s *Server) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Get(mux.Vars(r)["id"])
	if err != nil {
		WriteTransferError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, m)
}

// handleDeleteManifest handles DELETE /api/v1/manifests/{id}
func (s *Server) handleDeleteManifest(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(mux.Vars(r)["id"]); err != nil {
		WriteTransferError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload handles POST /api/v1/uploads
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		m   *metadata.TransferManifest
		err error
	)
	if req.URL != "" {
		m, err = s.svc.ArchiveURL(r.Context(), req.URL, req.Filename, req.Caption)
	} else {
		m, err = s.svc.Archive(r.Context(), req.Path, req.Caption)
	}
	if err != nil {
		WriteTransferError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusCreated, m)
}

// handleDownload handles POST /api/v1/downloads
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		out string
		err error
	)
	if req.Manifest != nil {
		out, err = s.svc.RestoreManifest(r.Context(), req.Manifest, req.OutputPath)
	} else {
		out, err = s.svc.Restore(r.Context(), req.ID, req.OutputPath)
	}
	if err != nil {
		WriteTransferError(w, err)
		return
	}

	resp := DownloadResponse{OutputPath: out}
	if info, statErr := os.Stat(out); statErr == nil {
		resp.Bytes = info.Size()
	}
	WriteJSONResponse(w, http.StatusOK, resp)
}

// handleTransfers handles GET /api/v1/transfers
func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, TransfersResponse{Transfers: s.svc.Progress().GetAllProgress()})
}

// handleTransfer handles GET /api/v1/transfers/{id}
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	p, ok := s.svc.Progress().GetProgress(mux.Vars(r)["id"])
	if !ok {
		WriteErrorResponse(w, http.StatusNotFound, "Transfer not found")
		return
	}
	WriteJSONResponse(w, http.StatusOK, p)
}
