package domain

import (
	"math/bits"

	tierdomain "github.com/0xkuwabatake/normies-membership/internal/tier/domain"
)

// UncheckedWindow is the raw window arithmetic: start at the later of the
// asset's snapshot timestamp and the tier's start, end one cached duration
// later.
func UncheckedWindow(tier tierdomain.Tier, asset Asset) (start, end int64) {
	start = asset.CreatedTS
	if tier.StartAt > start {
		start = tier.StartAt
	}
	return start, start + asset.CachedDuration
}

// Window derives the checked window. It collapses to (0, 0) whenever the tier
// is not counting down at now: pre-live and finished statuses always, Live
// before its start, Paused or Ending past their boundary.
func Window(tier tierdomain.Tier, asset Asset, now int64) (start, end int64) {
	switch tier.Status {
	case tierdomain.TierStatusNotLive,
		tierdomain.TierStatusReadyToStart,
		tierdomain.TierStatusReadyToLive,
		tierdomain.TierStatusFinished:
		return 0, 0
	case tierdomain.TierStatusLive:
		if now < tier.StartAt {
			return 0, 0
		}
	case tierdomain.TierStatusPaused:
		if now > tier.PauseAt {
			return 0, 0
		}
	case tierdomain.TierStatusEnding:
		if now > tier.EndAt {
			return 0, 0
		}
	}
	return UncheckedWindow(tier, asset)
}

// Status reports Inactive only for a defined, elapsed window. An undefined
// (collapsed) window never reports Inactive.
func Status(tier tierdomain.Tier, asset Asset, now int64) AssetStatus {
	start, end := Window(tier, asset, now)
	if start != 0 && end != 0 && now > end {
		return AssetStatusInactive
	}
	return AssetStatusActive
}

// FeeOwed quotes the renewal fee at now. The fee is zero unless the tier is
// Live, Paused or Ending; while a terminal boundary approaches, the quote
// decays with the fraction of a full period still purchasable and reaches
// exactly zero the instant the boundary arrives.
func FeeOwed(tier tierdomain.Tier, flatFee uint64, now int64) uint64 {
	switch tier.Status {
	case tierdomain.TierStatusLive:
		return flatFee
	case tierdomain.TierStatusPaused, tierdomain.TierStatusEnding:
		boundary := tier.Boundary()
		remainder := boundary - now
		if remainder <= 0 {
			return 0
		}
		if remainder >= tier.Duration {
			return flatFee
		}
		return prorate(flatFee, remainder, tier.Duration)
	default:
		return 0
	}
}

// prorate computes floor(fee·remainder/duration) through a 128-bit
// intermediate, so no representable fee and interval can overflow. The
// quotient is bounded by fee because remainder < duration.
func prorate(fee uint64, remainder, duration int64) uint64 {
	if duration <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(fee, uint64(remainder))
	quo, _ := bits.Div64(hi, lo, uint64(duration))
	return quo
}
