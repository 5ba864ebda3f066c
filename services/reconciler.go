package services

import (
	"wheelsync/models"
)

// Outcome describes what Reconcile did with a reading
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeStale
	OutcomeMalformed
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeStale:
		return "stale"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Err maps a dropped outcome to its sentinel; applied and ignored readings return nil
func (o Outcome) Err() error {
	switch o {
	case OutcomeStale:
		return ErrStaleReading
	case OutcomeMalformed:
		return ErrMalformedReading
	default:
		return nil
	}
}

// Reconciler merges poll readings and command confirmations into a DeviceState.
// Both operations are pure: the input state is never modified.
type Reconciler struct {
	classifier *ObstacleClassifier
}

func NewReconciler(classifier *ObstacleClassifier) *Reconciler {
	return &Reconciler{classifier: classifier}
}

// Reconcile applies a poll reading tagged with the logical sequence number taken when its
// tick was issued. A reading older than the last confirmed command of its family is stale.
func (r *Reconciler) Reconcile(current models.DeviceState, reading models.Reading, readingSeq uint64) (models.DeviceState, Outcome) {
	if reading == nil || !r.valid(reading) {
		return current, OutcomeMalformed
	}
	if readingSeq < current.Confirmed.Get(reading.Family()) {
		return current, OutcomeStale
	}
	return r.apply(current, reading)
}

// Confirm writes the fields a successful command set and raises the family watermark.
// A confirmation older than one already applied for the family is stale.
func (r *Reconciler) Confirm(current models.DeviceState, reading models.Reading, seq uint64) (models.DeviceState, Outcome) {
	if reading == nil || !r.valid(reading) {
		return current, OutcomeMalformed
	}
	if seq < current.Confirmed.Get(reading.Family()) {
		return current, OutcomeStale
	}
	next, outcome := r.apply(current, reading)
	if outcome != OutcomeApplied {
		return current, outcome
	}
	next.Confirmed = next.Confirmed.Raise(reading.Family(), seq)
	return next, outcome
}

func (r *Reconciler) valid(reading models.Reading) bool {
	switch rd := reading.(type) {
	case models.MotorReading:
		if rd.Speed < 0 || rd.Speed > 100 {
			return false
		}
		_, ok := models.ParseDirection(string(rd.Direction))
		return ok
	case models.SensorReading:
		return rd.DistanceCm != nil || rd.Obstacle != nil
	case models.GPSReading:
		return rd.Status != ""
	case models.CameraReading:
		return true
	case models.FrameReading:
		return rd.FrameURL != ""
	}
	return false
}

func (r *Reconciler) apply(state models.DeviceState, reading models.Reading) (models.DeviceState, Outcome) {
	switch rd := reading.(type) {
	case models.MotorReading:
		state.Motor = models.MotorState{
			Running:   rd.Running,
			Speed:     rd.Speed,
			Direction: rd.Direction,
		}
		// Stopped motors never carry a movement direction
		if !state.Motor.Running {
			state.Motor.Direction = models.DirectionStop
		}

	case models.SensorReading:
		if rd.DistanceCm != nil {
			cm := *rd.DistanceCm
			state.Distance = models.DistanceState{Cm: &cm}
		}
		if rd.Obstacle != nil {
			state.Obstacle = r.classifier.Classify(*rd.Obstacle)
		}

	case models.GPSReading:
		state.GPS = models.GPSState{
			Status:      rd.Status,
			FixQuality:  rd.Status.FixQuality(),
			Coordinates: rd.Coordinates,
			Speed:       rd.Speed,
			Altitude:    rd.Altitude,
			Satellites:  rd.Satellites,
			Description: rd.Description,
		}
		if rd.Status == models.GPSActive {
			if lat, lng, ok := models.ParseCoordinates(rd.Coordinates); ok {
				state.GPS.Latitude = &lat
				state.GPS.Longitude = &lng
			}
		}

	case models.CameraReading:
		state.Camera.Status = models.CameraStatusFor(rd.Available)
		if rd.URL != "" {
			state.Camera.URL = rd.URL
		}
		if !rd.Available {
			state.Camera.FrameURL = ""
		}

	case models.FrameReading:
		if !state.Camera.Available() {
			return state, OutcomeIgnored
		}
		state.Camera.FrameURL = rd.FrameURL

	default:
		return state, OutcomeMalformed
	}

	return state, OutcomeApplied
}
