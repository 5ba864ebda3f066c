package services

import (
	"wheelsync/config"
	"wheelsync/models"
)

// ObstacleThresholds are the lower bounds, in cm, of the warning bands
type ObstacleThresholds struct {
	Danger  float64
	Warning float64
	Caution float64
}

type ObstacleClassifier struct {
	thresholds ObstacleThresholds
}

func NewObstacleClassifier(cfg *config.Config) *ObstacleClassifier {
	return &ObstacleClassifier{
		thresholds: ObstacleThresholds{
			Danger:  cfg.ObstacleDangerCm,
			Warning: cfg.ObstacleWarningCm,
			Caution: cfg.ObstacleCautionCm,
		},
	}
}

// NewObstacleClassifierWithThresholds builds a classifier from explicit bands
func NewObstacleClassifierWithThresholds(t ObstacleThresholds) *ObstacleClassifier {
	return &ObstacleClassifier{thresholds: t}
}

// Level maps a distance to its warning band
func (oc *ObstacleClassifier) Level(distanceCm float64) models.ObstacleLevel {
	switch {
	case distanceCm < oc.thresholds.Danger:
		return models.ObstacleDanger
	case distanceCm < oc.thresholds.Warning:
		return models.ObstacleWarning
	case distanceCm < oc.thresholds.Caution:
		return models.ObstacleCaution
	default:
		return models.ObstacleClear
	}
}

// Classify derives the obstacle fields from a raw reading.
// The danger band always flags auto-stop even if the backend did not report it.
func (oc *ObstacleClassifier) Classify(r models.ObstacleReading) models.ObstacleState {
	level := oc.Level(r.DistanceCm)
	return models.ObstacleState{
		DistanceCm:        r.DistanceCm,
		Level:             level,
		Detected:          r.Detected,
		AutoStopTriggered: r.AutoStopTriggered || level == models.ObstacleDanger,
	}
}

// Thresholds returns the configured bands
func (oc *ObstacleClassifier) Thresholds() ObstacleThresholds {
	return oc.thresholds
}
