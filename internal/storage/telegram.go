package storage

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/TeleVault/internal/telegram"
)

// TelegramStorage stores objects as documents posted to a Telegram channel.
// Reference ids are Telegram file ids.
type TelegramStorage struct {
	client *telegram.Client
	logger *logrus.Logger
}

// NewTelegramStorage wraps an already configured bot client. Closing the
// storage closes the client.
func NewTelegramStorage(client *telegram.Client, logger *logrus.Logger) *TelegramStorage {
	if logger == nil {
		logger = logrus.New()
	}
	return &TelegramStorage{client: client, logger: logger}
}

// Put posts obj as a document and returns its file id.
func (s *TelegramStorage) Put(ctx context.Context, obj Object) (string, error) {
	msg, err := s.client.SendDocument(ctx, telegram.Document{
		FileName: obj.Name,
		Caption:  obj.Caption,
		Reader:   obj.Body,
	})
	if err != nil {
		return "", err
	}

	s.logger.WithFields(logrus.Fields{
		"message_id": msg.MessageID,
		"name":       obj.Name,
		"size":       obj.Size,
	}).Debug("document stored in channel")
	return msg.Document.FileID, nil
}

// Get resolves id through getFile and downloads the document into w.
func (s *TelegramStorage) Get(ctx context.Context, id string, w io.Writer) (int64, error) {
	f, err := s.client.GetFile(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.client.DownloadFile(ctx, f, w)
}

// Close releases the underlying client.
func (s *TelegramStorage) Close() error {
	return s.client.Close()
}
