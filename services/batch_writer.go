package services

import (
	"context"
	"sync"
	"time"

	"wheelsync/config"
	"wheelsync/models"

	"go.uber.org/zap"
)

// snapshotStore persists batches of state snapshots
type snapshotStore interface {
	WriteBatch(ctx context.Context, batch []*models.StateSnapshot) error
}

// HistoryWriter records material state changes and writes them in batches
type HistoryWriter struct {
	store        snapshotStore
	logger       *zap.Logger
	snapshots    chan *models.StateSnapshot
	buffer       []*models.StateSnapshot
	bufferMutex  sync.Mutex
	maxBatchSize int
	batchTimeout time.Duration
	retryBackoff time.Duration
	lastState    *models.DeviceState
	shutdownChan chan bool
}

// NewHistoryWriter creates a new history writer
func NewHistoryWriter(cfg *config.Config, store snapshotStore, logger *zap.Logger) *HistoryWriter {
	return &HistoryWriter{
		store:        store,
		logger:       logger,
		snapshots:    make(chan *models.StateSnapshot, 2*cfg.HistoryBatchSize),
		buffer:       make([]*models.StateSnapshot, 0, cfg.HistoryBatchSize),
		maxBatchSize: cfg.HistoryBatchSize,
		batchTimeout: time.Duration(cfg.HistoryBatchTimeout) * time.Second,
		retryBackoff: time.Second,
		shutdownChan: make(chan bool, 1),
	}
}

// OnStateChanged queues a snapshot of material changes without blocking the caller
func (hw *HistoryWriter) OnStateChanged(state models.DeviceState) {
	if hw.lastState != nil && !MaterialChange(*hw.lastState, state) {
		return
	}
	hw.lastState = &state

	snapshot := &models.StateSnapshot{
		SessionID: state.SessionID,
		Timestamp: state.UpdatedAt,
		State:     state,
	}
	select {
	case hw.snapshots <- snapshot:
	default:
		hw.logger.Warn("History queue full, dropping snapshot", zap.String("session_id", state.SessionID))
	}
}

func (hw *HistoryWriter) OnCommandFailed(string) {}
func (hw *HistoryWriter) OnCameraUnavailable()   {}
func (hw *HistoryWriter) OnCameraAvailable()     {}

// Start begins the history writer
func (hw *HistoryWriter) Start(ctx context.Context) {
	hw.logger.Info("Starting history writer",
		zap.Int("max_batch_size", hw.maxBatchSize),
		zap.Duration("batch_timeout", hw.batchTimeout))

	flushTimer := time.NewTimer(hw.batchTimeout)
	defer flushTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			hw.logger.Info("History writer received shutdown signal")
			hw.drain()
			// The parent context is gone; give the final write its own deadline
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			hw.flushBuffer(flushCtx)
			cancel()
			hw.shutdownChan <- true
			return

		case snapshot := <-hw.snapshots:
			hw.bufferMutex.Lock()
			hw.buffer = append(hw.buffer, snapshot)
			currentSize := len(hw.buffer)
			hw.bufferMutex.Unlock()

			hw.logger.Debug("Added snapshot to buffer",
				zap.String("session_id", snapshot.SessionID),
				zap.Int("buffer_size", currentSize),
				zap.Int("max_batch_size", hw.maxBatchSize))

			if currentSize >= hw.maxBatchSize {
				hw.logger.Info("Buffer full, flushing history", zap.Int("buffer_size", currentSize))

				// Stop and reset timer
				if !flushTimer.Stop() {
					select {
					case <-flushTimer.C:
					default:
					}
				}

				hw.flushBuffer(ctx)
				flushTimer.Reset(hw.batchTimeout)
			}

		case <-flushTimer.C:
			if size := hw.BufferSize(); size > 0 {
				hw.logger.Info("Batch timeout reached, flushing history", zap.Int("buffer_size", size))
				hw.flushBuffer(ctx)
			}
			flushTimer.Reset(hw.batchTimeout)
		}
	}
}

// drain moves everything still queued into the buffer
func (hw *HistoryWriter) drain() {
	hw.bufferMutex.Lock()
	defer hw.bufferMutex.Unlock()
	for {
		select {
		case snapshot := <-hw.snapshots:
			hw.buffer = append(hw.buffer, snapshot)
		default:
			return
		}
	}
}

// flushBuffer writes the current buffer and clears it
func (hw *HistoryWriter) flushBuffer(ctx context.Context) {
	hw.bufferMutex.Lock()

	if len(hw.buffer) == 0 {
		hw.bufferMutex.Unlock()
		return
	}

	// Copy buffer for writing (to avoid holding lock during write)
	batch := make([]*models.StateSnapshot, len(hw.buffer))
	copy(batch, hw.buffer)
	hw.buffer = hw.buffer[:0]

	hw.bufferMutex.Unlock()

	// Write batch with retry
	maxRetries := 3
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = hw.store.WriteBatch(ctx, batch)
		if err == nil {
			hw.logger.Info("Successfully flushed history batch", zap.Int("batch_size", len(batch)))
			return
		}

		hw.logger.Error("Failed to flush history batch",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Int("batch_size", len(batch)),
			zap.Error(err))

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				attempt = maxRetries
			case <-time.After(time.Duration(attempt) * hw.retryBackoff):
			}
		}
	}

	// If all retries failed, log error (data will be lost)
	hw.logger.Error("Failed to flush history batch after all retries, data lost",
		zap.Int("batch_size", len(batch)),
		zap.Error(err))
}

// WaitForShutdown waits for the final flush to complete
func (hw *HistoryWriter) WaitForShutdown(timeout time.Duration) bool {
	select {
	case <-hw.shutdownChan:
		return true
	case <-time.After(timeout):
		return false
	}
}

// BufferSize returns the current buffer size
func (hw *HistoryWriter) BufferSize() int {
	hw.bufferMutex.Lock()
	defer hw.bufferMutex.Unlock()
	return len(hw.buffer)
}
