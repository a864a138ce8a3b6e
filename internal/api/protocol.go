package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jaywantadh/TeleVault/internal/metadata"
	"github.com/jaywantadh/TeleVault/internal/transfer"
	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// API version and base path
const (
	APIVersion = "v1"
	BasePath   = "/api/" + APIVersion
)

// UploadRequest asks the server to archive a file already on its disk
// (Path) or one it fetches from an http(s) URL.
type UploadRequest struct {
	Path     string `json:"path,omitempty"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// DownloadRequest restores either a stored manifest (ID) or an inline one.
type DownloadRequest struct {
	ID         string                     `json:"id,omitempty"`
	Manifest   *metadata.TransferManifest `json:"manifest,omitempty"`
	OutputPath string                     `json:"output_path"`
}

// DownloadResponse reports where the restored file was written.
type DownloadResponse struct {
	OutputPath string `json:"output_path"`
	Bytes      int64  `json:"bytes"`
}

// TransfersResponse lists tracked transfers.
type TransfersResponse struct {
	Transfers []transfer.TransferProgress `json:"transfers"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      int    `json:"code"`
	Kind      string `json:"kind,omitempty"`
	Completed *int   `json:"completed_chunks,omitempty"`
}

// Validation helpers
func (req *UploadRequest) Validate() error {
	if (req.Path == "") == (req.URL == "") {
		return fmt.Errorf("exactly one of path or url is required")
	}
	if req.Filename != "" && req.URL == "" {
		return fmt.Errorf("filename only applies to url uploads")
	}
	return nil
}

func (req *DownloadRequest) Validate() error {
	if req.OutputPath == "" {
		return fmt.Errorf("output_path is required")
	}
	if (req.ID == "") == (req.Manifest == nil) {
		return fmt.Errorf("exactly one of id or manifest is required")
	}
	return nil
}

// Response helpers
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

func WriteErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: errorMsg,
		Code:    statusCode,
	}
	WriteJSONResponse(w, statusCode, response)
}

// WriteTransferError maps a transfer failure onto an HTTP status and
// includes the completed chunk count for chunk level failures.
func WriteTransferError(w http.ResponseWriter, err error) {
	kind := vaulterr.KindOf(err)
	status := StatusForKind(kind)
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    status,
		Kind:    kind.String(),
	}
	var ve *vaulterr.Error
	if errors.As(err, &ve) && ve.Chunk >= 0 {
		completed := ve.Completed
		response.Completed = &completed
	}
	WriteJSONResponse(w, status, response)
}

// StatusForKind returns the HTTP status used for an error kind.
func StatusForKind(kind vaulterr.Kind) int {
	switch kind {
	case vaulterr.InvalidInput:
		return http.StatusBadRequest
	case vaulterr.RemoteNotFound:
		return http.StatusNotFound
	case vaulterr.RemoteRejected:
		return http.StatusBadGateway
	case vaulterr.RemoteTransient:
		return http.StatusServiceUnavailable
	case vaulterr.Integrity:
		return http.StatusUnprocessableEntity
	case vaulterr.Canceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
