package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wheelsync/simulator"

	"go.uber.org/zap"
)

var (
	addr      = flag.String("addr", "127.0.0.1:5000", "Listen address (host:port)")
	latency   = flag.Duration("latency", 0, "Delay added to every response")
	distance  = flag.Float64("distance", 120, "Base distance sensor reading in cm")
	jitter    = flag.Float64("jitter", 5, "Distance noise in cm")
	gpsFix    = flag.Bool("gps-fix", true, "Report an active GPS fix")
	camera    = flag.Bool("camera", true, "Report the camera as available")
	cameraURL = flag.String("camera-url", "", "Camera URL returned by scans")
)

func main() {
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	backend := simulator.New(logger)
	backend.SetLatency(*latency)
	backend.SetDistance(*distance, *jitter)
	backend.SetGPSFix(*gpsFix)
	backend.SetCameraAvailable(*camera)
	if *cameraURL != "" {
		backend.SetCameras(*cameraURL)
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           backend.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Mock wheelchair backend listening",
			zap.String("addr", *addr),
			zap.Duration("latency", *latency),
			zap.Float64("distance_cm", *distance),
			zap.Bool("gps_fix", *gpsFix),
			zap.Bool("camera", *camera))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Mock backend failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down mock backend")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
