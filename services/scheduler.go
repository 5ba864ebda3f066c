package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"wheelsync/config"
	"wheelsync/models"

	"go.uber.org/zap"
)

// PollFunc fetches one reading. A nil reading with a nil error means nothing to apply.
type PollFunc func(ctx context.Context) (models.Reading, error)

// PollTask is a named poll with its own cadence
type PollTask struct {
	Name     string
	Interval time.Duration
	Poll     PollFunc
}

// TaskStats counts what happened to a task's ticks
type TaskStats struct {
	Runs     uint64
	Failures uint64
	Skipped  uint64
}

type pollTask struct {
	PollTask
	inFlight atomic.Bool
	runs     atomic.Uint64
	failures atomic.Uint64
	skipped  atomic.Uint64
}

// PollScheduler runs every registered task on its interval. A task never overlaps itself:
// a tick that fires while the previous call is still in flight is skipped.
type PollScheduler struct {
	timeout time.Duration
	clock   Clock
	store   *StateStore
	monitor *LinkMonitor
	logger  *zap.Logger

	mu    sync.RWMutex
	tasks []*pollTask
	calls sync.WaitGroup
}

// NewPollScheduler creates a new poll scheduler. monitor may be nil.
func NewPollScheduler(cfg *config.Config, clock Clock, store *StateStore, monitor *LinkMonitor, logger *zap.Logger) *PollScheduler {
	return &PollScheduler{
		timeout: cfg.RequestTimeout(),
		clock:   clock,
		store:   store,
		monitor: monitor,
		logger:  logger,
	}
}

// Register adds tasks. Tasks registered after Start are not run.
func (s *PollScheduler) Register(tasks ...PollTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range tasks {
		if task.Name == "" || task.Poll == nil {
			return fmt.Errorf("invalid poll task %q", task.Name)
		}
		if task.Interval <= 0 {
			return fmt.Errorf("poll task %s: interval must be positive", task.Name)
		}
		for _, existing := range s.tasks {
			if existing.Name == task.Name {
				return fmt.Errorf("poll task %s already registered", task.Name)
			}
		}
		s.tasks = append(s.tasks, &pollTask{PollTask: task})
	}
	return nil
}

// Start fires every task immediately and then on its interval until ctx is cancelled.
// It returns once all loops have exited and in-flight calls have finished.
func (s *PollScheduler) Start(ctx context.Context) {
	s.mu.RLock()
	tasks := append([]*pollTask(nil), s.tasks...)
	s.mu.RUnlock()

	s.logger.Info("Starting poll scheduler", zap.Int("tasks", len(tasks)), zap.Duration("request_timeout", s.timeout))

	var loops sync.WaitGroup
	for _, t := range tasks {
		loops.Add(1)
		go func(t *pollTask) {
			defer loops.Done()
			s.run(ctx, t)
		}(t)
	}

	loops.Wait()
	s.calls.Wait()
	s.logger.Info("Poll scheduler stopped")
}

func (s *PollScheduler) run(ctx context.Context, t *pollTask) {
	ticker := s.clock.NewTicker(t.Interval)
	defer ticker.Stop()

	s.logger.Debug("Poll task started", zap.String("task", t.Name), zap.Duration("interval", t.Interval))

	s.fire(ctx, t)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.fire(ctx, t)
		}
	}
}

// fire issues one call of t unless the previous one is still running
func (s *PollScheduler) fire(ctx context.Context, t *pollTask) {
	if ctx.Err() != nil {
		return
	}
	if !t.inFlight.CompareAndSwap(false, true) {
		t.skipped.Add(1)
		s.logger.Debug("Skipped tick, previous call still in flight", zap.String("task", t.Name))
		return
	}

	seq := s.store.NextSeq()
	s.calls.Add(1)
	go func() {
		defer s.calls.Done()
		defer t.inFlight.Store(false)
		s.call(ctx, t, seq)
	}()
}

func (s *PollScheduler) call(ctx context.Context, t *pollTask, seq uint64) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	t.runs.Add(1)
	reading, err := t.Poll(callCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.failures.Add(1)
		s.logger.Warn("Poll failed",
			zap.String("task", t.Name),
			zap.Uint64("seq", seq),
			zap.Error(err))
		s.recordLink(t.Name, err)
		return
	}
	s.recordLink(t.Name, nil)

	if reading == nil {
		return
	}
	outcome := s.store.ApplyReading(reading, seq)
	if err := outcome.Err(); err != nil {
		s.logger.Debug("Poll reading dropped",
			zap.String("task", t.Name),
			zap.Uint64("seq", seq),
			zap.Error(err))
		return
	}
	s.logger.Debug("Poll applied",
		zap.String("task", t.Name),
		zap.Uint64("seq", seq),
		zap.Stringer("outcome", outcome))
}

// recordLink feeds the monitor. Only transport failures mean the backend is unreachable.
func (s *PollScheduler) recordLink(task string, err error) {
	if s.monitor == nil {
		return
	}
	if err != nil && errors.Is(err, ErrNetworkFailure) {
		s.monitor.RecordFailure(task, err)
		return
	}
	s.monitor.RecordSuccess(task)
}

// Stats returns the counters of a task
func (s *PollScheduler) Stats(name string) (TaskStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tasks {
		if t.Name == name {
			return TaskStats{
				Runs:     t.runs.Load(),
				Failures: t.failures.Load(),
				Skipped:  t.skipped.Load(),
			}, true
		}
	}
	return TaskStats{}, false
}

// DefaultTasks builds the motor, sensors, gps, camera and frame polls
func DefaultTasks(cfg *config.Config, source TelemetrySource, store *StateStore, clock Clock) []PollTask {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }

	return []PollTask{
		{
			Name:     "motor",
			Interval: ms(cfg.MotorPollMs),
			Poll: func(ctx context.Context) (models.Reading, error) {
				return source.MotorStatus(ctx)
			},
		},
		{
			Name:     "sensors",
			Interval: ms(cfg.SensorPollMs),
			Poll: func(ctx context.Context) (models.Reading, error) {
				return pollSensors(ctx, source)
			},
		},
		{
			Name:     "gps",
			Interval: ms(cfg.GPSPollMs),
			Poll: func(ctx context.Context) (models.Reading, error) {
				return source.GPS(ctx)
			},
		},
		{
			Name:     "camera",
			Interval: ms(cfg.CameraPollMs),
			Poll: func(ctx context.Context) (models.Reading, error) {
				return source.CameraStatus(ctx)
			},
		},
		{
			Name:     "frame",
			Interval: ms(cfg.FrameRefreshMs),
			Poll: func(ctx context.Context) (models.Reading, error) {
				camera := store.Snapshot().Camera
				if !camera.Available() || camera.URL == "" {
					return nil, nil
				}
				return models.FrameReading{FrameURL: frameURL(camera.URL, cfg.CameraFramePath, clock.Now())}, nil
			},
		},
	}
}

// pollSensors reads distance and obstacle status. One failing half still yields a reading.
func pollSensors(ctx context.Context, source TelemetrySource) (models.Reading, error) {
	var reading models.SensorReading

	distance, distErr := source.Distance(ctx)
	if distErr == nil {
		reading.DistanceCm = &distance
	}
	obstacle, obstErr := source.ObstacleStatus(ctx)
	if obstErr == nil {
		reading.Obstacle = &obstacle
	}

	if distErr != nil && obstErr != nil {
		return nil, errors.Join(distErr, obstErr)
	}
	return reading, nil
}

// frameURL cache-busts the camera still endpoint
func frameURL(cameraURL, framePath string, now time.Time) string {
	base := strings.TrimRight(cameraURL, "/")
	if framePath != "" && !strings.HasPrefix(framePath, "/") {
		framePath = "/" + framePath
	}
	return fmt.Sprintf("%s%s?t=%d", base, framePath, now.UnixMilli())
}
