package model

import "time"

// Weights of the club-creation eligibility score. A user may found a club once
// their weighted activity/tenure score reaches the configured threshold.
const (
	WeightRating       = 0.4
	WeightRidesJoined  = 0.2
	WeightRidesCreated = 0.2
	WeightClubCount    = 0.1
	WeightTenure       = 0.1

	// DefaultClubCreationThreshold is used when CLUB_CREATION_THRESHOLD is unset.
	DefaultClubCreationThreshold = 5.0
)

// monthMillis approximates one month as 30 days, matching how tenure has
// always been scored.
const monthMillis = 1000 * 60 * 60 * 24 * 30

// Rating rewards applied as side effects of ride/club activity.
const (
	RatingRewardRideJoined  = 0.5
	RatingRewardRideCreated = 1.0
	RatingRewardClubJoined  = 0.3
	RatingRewardClubCreated = 2.0
	RatingMax               = 10.0
)

// ClubCreationScore computes the weighted eligibility score. It is a pure
// function of its inputs: recomputing with identical arguments always yields
// the same result, so it is safe to re-run whenever any input changes.
func ClubCreationScore(rating float64, ridesJoined, ridesCreated, clubCount int, registeredAt, now time.Time) float64 {
	ageMonths := float64(now.Sub(registeredAt).Milliseconds()) / float64(monthMillis)
	if ageMonths < 0 {
		ageMonths = 0
	}

	return rating*WeightRating +
		float64(ridesJoined)*WeightRidesJoined +
		float64(ridesCreated)*WeightRidesCreated +
		float64(clubCount)*WeightClubCount +
		ageMonths*WeightTenure
}

// CanCreateClub reports whether the score clears the threshold.
func CanCreateClub(score, threshold float64) bool {
	return score >= threshold
}
