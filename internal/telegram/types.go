package telegram

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result"`
	ErrorCode   int                 `json:"error_code"`
	Description string              `json:"description"`
	Parameters  *responseParameters `json:"parameters"`
}

type responseParameters struct {
	RetryAfter      int   `json:"retry_after"`
	MigrateToChatID int64 `json:"migrate_to_chat_id"`
}

// User is the subset of the Bot API User object returned by getMe.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Document is an outgoing file upload.
type Document struct {
	FileName string
	Caption  string
	Reader   io.Reader
}

// DocumentInfo describes a document attached to a message.
type DocumentInfo struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	FileSize     int64  `json:"file_size"`
}

// Message is the subset of the Bot API Message object we read back.
type Message struct {
	MessageID int           `json:"message_id"`
	Date      int64         `json:"date"`
	Caption   string        `json:"caption"`
	Document  *DocumentInfo `json:"document"`
}

// File is a handle returned by getFile.
type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size"`
	FilePath     string `json:"file_path"`
}

// APIError is an unsuccessful Bot API reply.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s failed (%d): %s, retry after %s", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// classify maps the reply onto the transfer error taxonomy.
func (e *APIError) classify() error {
	kind := vaulterr.RemoteRejected
	desc := strings.ToLower(e.Description)

	switch {
	case e.Code == http.StatusTooManyRequests || e.Code >= 500:
		kind = vaulterr.RemoteTransient
	case e.Code == http.StatusNotFound && e.Method != "sendDocument":
		kind = vaulterr.RemoteNotFound
	case e.Method == "getFile" && e.Code == http.StatusBadRequest &&
		(strings.Contains(desc, "file_id") || strings.Contains(desc, "not found")):
		kind = vaulterr.RemoteNotFound
	}

	return &vaulterr.Error{Kind: kind, Op: e.Method, Chunk: -1, RetryAfter: e.RetryAfter, Err: e}
}
