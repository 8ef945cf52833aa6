package tier

import (
	"time"

	"github.com/pulsesync/server/pkg/types"
)

const (
	HobbyistTierSyncsPerMonth  = 25
	HobbyistTierMaxConnections = 2
)

// Effective tier is used for internal logic
type EffectiveTier string

const (
	TierHobbyist EffectiveTier = "hobbyist"
	TierAthlete  EffectiveTier = "athlete"
)

// GetEffectiveTier determines the user's effective tier based on admin status,
// trial period, and stored tier.
func GetEffectiveTier(user *types.UserRecord) EffectiveTier {
	// Admin override always grants Athlete
	if user.IsAdmin {
		return TierAthlete
	}

	// Active trial grants Athlete
	if !user.TrialEndsAt.IsZero() && user.TrialEndsAt.After(time.Now()) {
		return TierAthlete
	}

	// Fall back to stored tier (default: hobbyist)
	if user.Tier == types.UserTierAthlete {
		return TierAthlete
	}

	return TierHobbyist
}

// CanSync checks if user can perform a sync within their tier limits.
// Callers must apply ShouldResetSyncCounts first so a stale counter from a
// previous month never blocks a sync.
func CanSync(user *types.UserRecord) (allowed bool, reason string) {
	if GetEffectiveTier(user) == TierAthlete {
		return true, ""
	}

	if user.SyncCountThisMonth >= HobbyistTierSyncsPerMonth {
		return false, "Hobbyist tier limit reached (25/month). Upgrade to Athlete for unlimited syncs."
	}

	return true, ""
}

// CanAddConnection checks if user can add a new connection within their tier limits.
func CanAddConnection(user *types.UserRecord, currentCount int) (allowed bool, reason string) {
	if GetEffectiveTier(user) == TierAthlete {
		return true, ""
	}

	if currentCount >= HobbyistTierMaxConnections {
		return false, "Hobbyist tier limited to 2 connections. Upgrade to Athlete for unlimited."
	}

	return true, ""
}

// CurrentMonth formats the month key the sync counters are stamped with.
func CurrentMonth(now time.Time) string {
	return now.Format("2006-01")
}

// ShouldResetSyncCounts reports whether the monthly counters belong to a
// previous month and must be zeroed before use.
func ShouldResetSyncCounts(user *types.UserRecord, now time.Time) bool {
	return user.SyncCountMonth != CurrentMonth(now)
}

// GetTrialDaysRemaining returns the number of days left in trial, or -1 if not on trial
func GetTrialDaysRemaining(user *types.UserRecord) int {
	if user.TrialEndsAt.IsZero() {
		return -1
	}

	now := time.Now()
	if !user.TrialEndsAt.After(now) {
		return 0
	}

	return int(user.TrialEndsAt.Sub(now).Hours()/24) + 1
}
