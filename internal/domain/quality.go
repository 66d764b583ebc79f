package domain

import (
	"encoding/json"
	"time"
)

// QualityLevel is the discrete classification of round-trip performance.
// Levels are ordered: a higher value is always worse.
type QualityLevel int

const (
	QualityExcellent QualityLevel = iota
	QualityGood
	QualityFair
	QualityPoor
	QualityCritical
)

func (q QualityLevel) String() string {
	switch q {
	case QualityExcellent:
		return "Excellent"
	case QualityGood:
		return "Good"
	case QualityFair:
		return "Fair"
	case QualityPoor:
		return "Poor"
	case QualityCritical:
		return "Critical"
	}
	return "Unknown"
}

// MarshalJSON writes the level name; the wire format carries "Good", not 1.
func (q QualityLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON accepts a level name as produced by MarshalJSON.
func (q *QualityLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "Excellent":
		*q = QualityExcellent
	case "Good":
		*q = QualityGood
	case "Fair":
		*q = QualityFair
	case "Poor":
		*q = QualityPoor
	default:
		*q = QualityCritical
	}
	return nil
}

// Classify maps a round-trip time to a quality level. Lower bounds are
// inclusive: exactly 50ms is Good, exactly 100ms is Fair.
// "No sample yet" is not a level; callers that may not have measured anything
// carry a separate ok flag instead of overloading Critical.
func Classify(rtt time.Duration) QualityLevel {
	ms := rtt.Milliseconds()
	switch {
	case ms < 50:
		return QualityExcellent
	case ms < 100:
		return QualityGood
	case ms < 200:
		return QualityFair
	case ms < 500:
		return QualityPoor
	default:
		return QualityCritical
	}
}
