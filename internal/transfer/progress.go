package transfer

import (
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// TransferStatus represents the current status of a transfer
type TransferStatus string

const (
	StatusPending    TransferStatus = "pending"
	StatusInProgress TransferStatus = "in_progress"
	StatusCompleted  TransferStatus = "completed"
	StatusFailed     TransferStatus = "failed"
	StatusCancelled  TransferStatus = "cancelled"
)

// Direction tells uploads and downloads apart.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// TransferProgress is a point-in-time view of one transfer.
type TransferProgress struct {
	TransferID    string         `json:"transfer_id"`
	FileName      string         `json:"file_name"`
	Direction     Direction      `json:"direction"`
	Status        TransferStatus `json:"status"`
	ChunksDone    int            `json:"chunks_done"`
	TotalChunks   int            `json:"total_chunks"`
	BytesDone     int64          `json:"bytes_done"`
	TotalBytes    int64          `json:"total_bytes"`
	StartTime     time.Time      `json:"start_time"`
	LastUpdate    time.Time      `json:"last_update"`
	Speed         float64        `json:"speed"` // bytes per second
	EstimatedTime time.Duration  `json:"estimated_time"`
	Error         string         `json:"error,omitempty"`
}

// Percent returns chunk based completion in the range 0-100.
func (p TransferProgress) Percent() float64 {
	if p.TotalChunks == 0 {
		return 0
	}
	return float64(p.ChunksDone) / float64(p.TotalChunks) * 100.0
}

// ProgressTracker tracks the progress of file transfers. A nil tracker
// accepts every call and records nothing.
type ProgressTracker struct {
	transfers map[string]*TransferProgress
	mu        sync.RWMutex
	logger    *logrus.Logger
	// retention is how long finished transfers stay visible. Zero keeps
	// them forever.
	retention time.Duration
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(logger *logrus.Logger) *ProgressTracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &ProgressTracker{
		transfers: make(map[string]*TransferProgress),
		logger:    logger,
	}
}

// SetRetention sets how long finished transfers are kept. Older finished
// entries are dropped whenever a transfer starts or the list is read.
func (pt *ProgressTracker) SetRetention(d time.Duration) {
	if pt == nil {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.retention = d
	pt.pruneLocked(time.Now())
}

// StartTracking starts tracking a new transfer
func (pt *ProgressTracker) StartTracking(transferID, fileName string, dir Direction, totalChunks int, totalBytes int64) {
	if pt == nil {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()

	now := time.Now()
	pt.pruneLocked(now)
	pt.transfers[transferID] = &TransferProgress{
		TransferID:  transferID,
		FileName:    fileName,
		Direction:   dir,
		Status:      StatusPending,
		TotalChunks: totalChunks,
		TotalBytes:  totalBytes,
		StartTime:   now,
		LastUpdate:  now,
	}
}

// ChunkDone records one more finished chunk of the given plain size.
func (pt *ProgressTracker) ChunkDone(transferID string, size int64) {
	if pt == nil {
		return
	}
	pt.mu.Lock()
	progress, exists := pt.transfers[transferID]
	if !exists {
		pt.mu.Unlock()
		return
	}

	now := time.Now()
	progress.ChunksDone++
	progress.BytesDone += size
	progress.Status = StatusInProgress
	progress.LastUpdate = now

	if elapsed := now.Sub(progress.StartTime).Seconds(); elapsed > 0 {
		progress.Speed = float64(progress.BytesDone) / elapsed
	}
	if progress.Speed > 0 && progress.TotalBytes > progress.BytesDone {
		remaining := float64(progress.TotalBytes - progress.BytesDone)
		progress.EstimatedTime = time.Duration(remaining/progress.Speed) * time.Second
	} else {
		progress.EstimatedTime = 0
	}
	snapshot := *progress
	pt.mu.Unlock()

	pt.logger.WithFields(logrus.Fields{
		"transfer_id": snapshot.TransferID,
		"direction":   snapshot.Direction,
		"chunks":      snapshot.ChunksDone,
		"of":          snapshot.TotalChunks,
		"bytes":       humanize.Bytes(uint64(snapshot.BytesDone)),
		"total":       humanize.Bytes(uint64(snapshot.TotalBytes)),
		"speed":       humanize.Bytes(uint64(snapshot.Speed)) + "/s",
	}).Debugf("chunk done (%.1f%%)", snapshot.Percent())
}

// Finish marks a transfer as completed, failed or cancelled.
func (pt *ProgressTracker) Finish(transferID string, status TransferStatus, err error) {
	if pt == nil {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()

	progress, exists := pt.transfers[transferID]
	if !exists {
		return
	}
	progress.Status = status
	progress.LastUpdate = time.Now()
	progress.EstimatedTime = 0
	if err != nil {
		progress.Error = err.Error()
	}
}

// GetProgress gets the current progress of a transfer
func (pt *ProgressTracker) GetProgress(transferID string) (TransferProgress, bool) {
	if pt == nil {
		return TransferProgress{}, false
	}
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	progress, exists := pt.transfers[transferID]
	if !exists {
		return TransferProgress{}, false
	}
	return *progress, true
}

// GetAllProgress gets progress for all tracked transfers, oldest first.
func (pt *ProgressTracker) GetAllProgress() []TransferProgress {
	if pt == nil {
		return nil
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.pruneLocked(time.Now())

	result := make([]TransferProgress, 0, len(pt.transfers))
	for _, progress := range pt.transfers {
		result = append(result, *progress)
	}
	sortProgress(result)
	return result
}

// pruneLocked drops finished transfers not updated within the retention
// window. pt.mu must be held.
func (pt *ProgressTracker) pruneLocked(now time.Time) {
	if pt.retention <= 0 {
		return
	}
	cutoff := now.Add(-pt.retention)
	removed := 0
	for id, progress := range pt.transfers {
		if progress.finished() && progress.LastUpdate.Before(cutoff) {
			delete(pt.transfers, id)
			removed++
		}
	}
	if removed > 0 {
		pt.logger.WithField("removed", removed).Debug("pruned finished transfers")
	}
}

func (p *TransferProgress) finished() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed || p.Status == StatusCancelled
}

func sortProgress(list []TransferProgress) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].StartTime.Before(list[j].StartTime)
	})
}
