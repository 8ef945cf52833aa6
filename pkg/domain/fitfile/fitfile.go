// Package fitfile renders a StandardizedActivity as a FIT activity file.
package fitfile

import (
	"bytes"
	"fmt"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"github.com/pulsesync/server/pkg/types"
)

// FIT stores position as semicircles: 2^31 / 180 per degree.
const semicirclesPerDegree = 11930464.7111

// Generate encodes the activity as a FIT file. Strength sets become Set
// messages; lap records become per-sample Record messages with heart rate,
// power, and position when present.
func Generate(activity *types.StandardizedActivity) ([]byte, error) {
	if activity == nil {
		return nil, fmt.Errorf("activity cannot be nil")
	}
	if len(activity.Sessions) == 0 {
		return nil, fmt.Errorf("activity must have at least one session")
	}

	session := activity.Sessions[0]
	startTime := activity.StartTime
	if startTime.IsZero() {
		startTime = session.StartTime
	}
	if startTime.IsZero() {
		return nil, fmt.Errorf("activity has no start time")
	}

	sport := sportFor(activity.Type)

	fit := &proto.FIT{}

	fileId := mesgdef.NewFileId(nil).
		SetType(typedef.FileActivity).
		SetManufacturer(typedef.ManufacturerDevelopment).
		SetProduct(1).
		SetTimeCreated(startTime)
	fit.Messages = append(fit.Messages, fileId.ToMesg(nil))

	// Summary messages are created up front but appended after the samples,
	// which is the ordering vendor importers expect.
	activityMsg := mesgdef.NewActivity(nil).
		SetTimestamp(startTime).
		SetType(typedef.ActivityManual).
		SetNumSessions(1)

	sessionMsg := mesgdef.NewSession(nil).
		SetTimestamp(startTime).
		SetSport(sport).
		SetStartTime(startTime)
	if session.TotalElapsedTime > 0 {
		sessionMsg.SetTotalElapsedTime(uint32(session.TotalElapsedTime * 1000))
		sessionMsg.SetTotalTimerTime(uint32(session.TotalElapsedTime * 1000))
	}
	if session.TotalDistance > 0 {
		sessionMsg.SetTotalDistance(uint32(session.TotalDistance * 100))
	}

	for _, lap := range session.Laps {
		for _, rec := range lap.Records {
			fit.Messages = append(fit.Messages, recordMesg(rec, startTime))
		}
	}

	for i, set := range session.StrengthSets {
		setMsg := mesgdef.NewSet(nil).
			SetTimestamp(startTime).
			SetStartTime(startTime).
			SetCategory([]typedef.ExerciseCategory{ExerciseCategory(set.ExerciseName)}).
			SetSetType(typedef.SetTypeActive).
			SetMessageIndex(typedef.MessageIndex(i))
		if set.Reps > 0 {
			setMsg.SetRepetitions(uint16(set.Reps))
		}
		if set.WeightKg > 0 {
			setMsg.SetWeightScaled(set.WeightKg)
		}
		if set.DurationSeconds > 0 {
			setMsg.SetDuration(uint32(set.DurationSeconds * 1000))
		}
		fit.Messages = append(fit.Messages, setMsg.ToMesg(nil))
	}

	lapMsg := mesgdef.NewLap(nil).
		SetTimestamp(startTime).
		SetStartTime(startTime).
		SetSport(sport).
		SetMessageIndex(0)
	if session.TotalElapsedTime > 0 {
		lapMsg.SetTotalElapsedTime(uint32(session.TotalElapsedTime * 1000))
		lapMsg.SetTotalTimerTime(uint32(session.TotalElapsedTime * 1000))
	}
	fit.Messages = append(fit.Messages, lapMsg.ToMesg(nil))

	fit.Messages = append(fit.Messages, sessionMsg.ToMesg(nil))
	fit.Messages = append(fit.Messages, activityMsg.ToMesg(nil))

	var buf bytes.Buffer
	if err := encoder.New(&buf).Encode(fit); err != nil {
		return nil, fmt.Errorf("failed to encode FIT file: %w", err)
	}
	return buf.Bytes(), nil
}

func recordMesg(rec *types.Record, fallback time.Time) proto.Message {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = fallback
	}
	msg := mesgdef.NewRecord(nil).SetTimestamp(ts)
	if rec.HeartRate > 0 {
		msg.SetHeartRate(uint8(rec.HeartRate))
	}
	if rec.Power > 0 {
		msg.SetPower(uint16(rec.Power))
	}
	if rec.Cadence > 0 {
		msg.SetCadence(uint8(rec.Cadence))
	}
	if rec.Speed > 0 {
		msg.SetSpeed(uint16(rec.Speed * 1000)) // mm/s
	}
	if rec.Altitude != 0 {
		msg.SetAltitude(uint16(5 * (rec.Altitude + 500)))
	}
	if rec.PositionLat != 0 || rec.PositionLong != 0 {
		msg.SetPositionLat(int32(rec.PositionLat * semicirclesPerDegree))
		msg.SetPositionLong(int32(rec.PositionLong * semicirclesPerDegree))
	}
	return msg.ToMesg(nil)
}

func sportFor(t types.ActivityType) typedef.Sport {
	switch t {
	case types.ActivityTypeRun, types.ActivityTypeTrailRun, types.ActivityTypeVirtualRun:
		return typedef.SportRunning
	case types.ActivityTypeWalk:
		return typedef.SportWalking
	case types.ActivityTypeHike:
		return typedef.SportHiking
	case types.ActivityTypeRide, types.ActivityTypeVirtualRide:
		return typedef.SportCycling
	case types.ActivityTypeSwim:
		return typedef.SportSwimming
	case types.ActivityTypeRowing:
		return typedef.SportRowing
	case types.ActivityTypeWeightTraining, types.ActivityTypeCrossfit, types.ActivityTypeHIIT:
		return typedef.SportTraining
	default:
		return typedef.SportGeneric
	}
}
