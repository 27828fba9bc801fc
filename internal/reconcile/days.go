package reconcile

import (
	"encoding/json"
	"time"

	"whoop-sync/internal/database"
)

// sleepScoreFields is the subset of the opaque sleep score payload the day
// projection reads
type sleepScoreFields struct {
	SleepEfficiencyPercentage *float64 `json:"sleep_efficiency_percentage"`
}

// RecomputeDay rebuilds the derived (athlete, date) summary from whatever
// records currently exist for that UTC calendar date. Recovery is attributed
// to the date its API created_at falls on; sleep to the date it ended on.
// Missing inputs leave the corresponding column NULL rather than zero.
func (r *Reconciler) RecomputeDay(athlete *database.Athlete, at time.Time) error {
	at = at.UTC()
	dayStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	rangeStart := dayStart.UnixMilli()
	rangeEnd := dayStart.Add(24 * time.Hour).UnixMilli()

	day := &database.Day{
		AthleteID:       athlete.AthleteID,
		Date:            dayStart.Format("2006-01-02"),
		IsCuttingWeight: athlete.IsCuttingWeight,
	}

	recovery, err := r.db.GetLatestRecoveryCreatedOn(athlete.AthleteID, rangeStart, rangeEnd)
	if err != nil {
		return err
	}
	if recovery != nil {
		day.RecoveryScore = recovery.RecoveryScore
	}

	sleep, err := r.db.GetLatestSleepEndingOn(athlete.AthleteID, rangeStart, rangeEnd)
	if err != nil {
		return err
	}
	if sleep != nil {
		var score sleepScoreFields
		// A score that fails to parse is treated as absent
		if err := json.Unmarshal([]byte(sleep.ScoreJSON), &score); err == nil {
			day.SleepEfficiencyScore = floatToInt(score.SleepEfficiencyPercentage)
		}
	}

	return r.db.UpsertDay(day)
}
