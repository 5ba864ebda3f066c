package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wheelsync/config"
	"wheelsync/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FirebaseService stores session state history in the Realtime Database
type FirebaseService struct {
	client *db.Client
	path   string
	logger *zap.Logger
}

func NewFirebaseService(cfg *config.Config, logger *zap.Logger) (*FirebaseService, error) {
	ctx := context.Background()

	// Parse the service account JSON from environment variable
	serviceAccountJSON := []byte(cfg.FirebaseServiceAccountJSON)

	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
	}

	opt := option.WithCredentialsJSON(serviceAccountJSON)
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	fs := &FirebaseService{
		client: client,
		path:   cfg.HistoryPath,
		logger: logger,
	}

	// Test Firebase connection with retry
	if err := fs.testConnection(ctx); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, fmt.Errorf("firebase connection test failed: %w", err)
	}

	return fs, nil
}

// testConnection tests Firebase connection with retry logic
func (fs *FirebaseService) testConnection(ctx context.Context) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		fs.logger.Info("Testing Firebase connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		// Shallow read of the history root
		var data map[string]interface{}
		err := fs.client.NewRef(fs.path).OrderByKey().LimitToFirst(1).Get(ctx, &data)
		if err == nil {
			fs.logger.Info("Firebase connection successful")
			return nil
		}

		fs.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

// snapshotKey orders lexicographically like the timestamp it encodes
func snapshotKey(ts time.Time) string {
	return fmt.Sprintf("%020d", ts.UnixNano())
}

// WriteBatch writes snapshots grouped per session in one multi-path update
func (fs *FirebaseService) WriteBatch(ctx context.Context, batch []*models.StateSnapshot) error {
	if len(batch) == 0 {
		return nil
	}

	updates := make(map[string]interface{}, len(batch))
	for _, snapshot := range batch {
		updates[snapshot.SessionID+"/"+snapshotKey(snapshot.Timestamp)] = snapshot
	}

	if err := fs.client.NewRef(fs.path).Update(ctx, updates); err != nil {
		return fmt.Errorf("error writing history batch: %w", err)
	}

	fs.logger.Debug("Wrote history batch",
		zap.String("path", fs.path),
		zap.Int("batch_size", len(batch)))
	return nil
}

// History returns up to limit most recent snapshots of a session, oldest first
func (fs *FirebaseService) History(ctx context.Context, sessionID string, limit int) ([]models.StateSnapshot, error) {
	ref := fs.client.NewRef(fs.path).Child(sessionID)

	var data map[string]models.StateSnapshot
	if err := ref.OrderByKey().LimitToLast(limit).Get(ctx, &data); err != nil {
		return nil, fmt.Errorf("error reading history of %s: %w", sessionID, err)
	}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	snapshots := make([]models.StateSnapshot, 0, len(keys))
	for _, key := range keys {
		snapshots = append(snapshots, data[key])
	}
	return snapshots, nil
}

// Sessions lists the session ids that have history
func (fs *FirebaseService) Sessions(ctx context.Context) ([]string, error) {
	var data map[string]interface{}
	if err := fs.client.NewRef(fs.path).GetShallow(ctx, &data); err != nil {
		return nil, fmt.Errorf("error listing sessions: %w", err)
	}

	sessions := make([]string, 0, len(data))
	for id := range data {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// Close closes the Firebase connection
func (fs *FirebaseService) Close() error {
	fs.logger.Info("Closing Firebase service")
	// The admin SDK holds no connection to release
	return nil
}
