package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"wheelsync/config"
	"wheelsync/log"
	"wheelsync/services"

	"go.uber.org/zap"
)

var (
	session = flag.String("session", "", "Session id to print; lists sessions when empty")
	limit   = flag.Int("limit", 20, "Number of most recent snapshots to print")
)

func main() {
	flag.Parse()

	logger := log.GetInstance()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.FirebaseDbUrl == "" {
		logger.Fatal("FIREBASE_DB_URL and FIREBASE_SERVICE_ACCOUNT_JSON are required")
	}

	firebaseService, err := services.NewFirebaseService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Firebase service", zap.Error(err))
	}
	defer firebaseService.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *session == "" {
		sessions, err := firebaseService.Sessions(ctx)
		if err != nil {
			logger.Fatal("Error listing sessions", zap.Error(err))
		}
		fmt.Printf("Sessions found: %d\n", len(sessions))
		for _, id := range sessions {
			fmt.Println(id)
		}
		return
	}

	snapshots, err := firebaseService.History(ctx, *session, *limit)
	if err != nil {
		logger.Fatal("Error reading history", zap.Error(err))
	}
	if len(snapshots) == 0 {
		fmt.Fprintf(os.Stderr, "No history for session %s\n", *session)
		os.Exit(1)
	}

	for _, s := range snapshots {
		st := s.State
		distance := "--"
		if st.Distance.Cm != nil {
			distance = fmt.Sprintf("%.1f cm", *st.Distance.Cm)
		}
		fmt.Printf("%s  motors=%-8s speed=%3d%%  distance=%-9s obstacle=%-7s gps=%-8s camera=%s\n",
			s.Timestamp.Format("2006-01-02 15:04:05.000"),
			st.Motor.Direction.Badge(),
			st.Motor.Speed,
			distance,
			st.Obstacle.Level,
			st.GPS.FixQuality,
			st.Camera.Status)
	}
}
