package services

import (
	"reflect"
	"sync"
	"sync/atomic"

	"wheelsync/models"

	"go.uber.org/zap"
)

// StateStore owns the session's DeviceState. Poll results and command confirmations are
// serialized behind one mutex together with their presenter notifications, so presenters
// observe changes in the order they were applied.
type StateStore struct {
	mu         sync.Mutex
	state      models.DeviceState
	seq        atomic.Uint64
	reconciler *Reconciler
	presenter  Presenter
	clock      Clock
	logger     *zap.Logger
}

func NewStateStore(initial models.DeviceState, reconciler *Reconciler, presenter Presenter, clock Clock, logger *zap.Logger) *StateStore {
	if presenter == nil {
		presenter = MultiPresenter(nil)
	}
	return &StateStore{
		state:      initial,
		reconciler: reconciler,
		presenter:  presenter,
		clock:      clock,
		logger:     logger,
	}
}

// NextSeq issues the next logical sequence number. Polls and commands share the counter.
func (s *StateStore) NextSeq() uint64 {
	return s.seq.Add(1)
}

// Snapshot returns a copy of the current state
func (s *StateStore) Snapshot() models.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ApplyReading reconciles a poll reading and notifies presenters on change
func (s *StateStore) ApplyReading(reading models.Reading, seq uint64) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, outcome := s.reconciler.Reconcile(s.state, reading, seq)
	switch outcome {
	case OutcomeStale:
		s.logger.Debug("Dropped stale reading",
			zap.String("family", string(reading.Family())),
			zap.Uint64("reading_seq", seq),
			zap.Uint64("confirmed_seq", s.state.Confirmed.Get(reading.Family())))
		return outcome
	case OutcomeMalformed:
		s.logger.Warn("Dropped malformed reading", zap.Uint64("reading_seq", seq))
		return outcome
	case OutcomeIgnored:
		return outcome
	}

	s.commit(next)
	return outcome
}

// RecordCommand stores the intent of a command before it is sent
func (s *StateStore) RecordCommand(cmd models.Command, speed int, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.LastCommand = models.LastCommand{
		Seq:       seq,
		Timestamp: s.clock.Now(),
		Kind:      cmd.Kind,
		Direction: cmd.Direction,
		Speed:     speed,
	}
}

// ConfirmCommand applies the fields a successful command set. A command that completes
// after a newer one of the same family was confirmed leaves the state as it is.
func (s *StateStore) ConfirmCommand(reading models.Reading, seq uint64) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, outcome := s.reconciler.Confirm(s.state, reading, seq)
	switch outcome {
	case OutcomeStale:
		s.logger.Info("Dropped stale confirmation",
			zap.String("family", string(reading.Family())),
			zap.Uint64("command_seq", seq),
			zap.Uint64("confirmed_seq", s.state.Confirmed.Get(reading.Family())))
		return outcome
	case OutcomeMalformed:
		s.logger.Warn("Dropped malformed confirmation", zap.Uint64("command_seq", seq))
		return outcome
	case OutcomeIgnored:
		return outcome
	}

	s.commit(next)
	return outcome
}

// ReportCommandFailure surfaces a failed command without touching state
func (s *StateStore) ReportCommandFailure(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.presenter.OnCommandFailed(reason)
}

// commit must be called with mu held
func (s *StateStore) commit(next models.DeviceState) {
	prev := s.state
	next.UpdatedAt = prev.UpdatedAt
	if reflect.DeepEqual(prev, next) {
		return
	}

	next.UpdatedAt = s.clock.Now()
	s.state = next
	s.presenter.OnStateChanged(next)

	if prev.Camera.Status != next.Camera.Status {
		switch next.Camera.Status {
		case models.CameraAvailable:
			s.presenter.OnCameraAvailable()
		case models.CameraUnavailable:
			s.presenter.OnCameraUnavailable()
		}
	}
}
