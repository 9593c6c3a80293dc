package policy

import "time"

// Conditions is a sample of current network quality, mirroring the
// browser connection signal this core originally consumed.
type Conditions struct {
	// EffectiveType is one of "slow-2g", "2g", "3g", "4g", or empty.
	EffectiveType string
	// DownlinkMbps is the estimated downstream bandwidth; 0 means unknown.
	DownlinkMbps float64
	// SaveData reports whether the user asked for reduced data usage.
	SaveData bool
}

// ConditionSource supplies live network-condition samples.
// Sample returns ok=false when no signal is available.
type ConditionSource interface {
	Sample() (Conditions, bool)
}

// Tier buckets network quality into a timeout multiplier.
type Tier string

// Network quality tiers and their timeout multipliers.
const (
	TierFast     Tier = "fast"      // 1.0x
	TierModerate Tier = "moderate"  // 1.5x
	TierSlow     Tier = "slow"      // 2.0x
	TierVerySlow Tier = "very_slow" // 3.0x
)

// Multiplier returns the timeout scaling factor for the tier.
func (t Tier) Multiplier() float64 {
	switch t {
	case TierFast:
		return 1.0
	case TierSlow:
		return 2.0
	case TierVerySlow:
		return 3.0
	default:
		return 1.5
	}
}

// Classify maps a condition sample to a quality tier.
func Classify(c Conditions) Tier {
	if c.SaveData {
		return TierVerySlow
	}
	switch c.EffectiveType {
	case "slow-2g", "2g":
		return TierVerySlow
	case "3g":
		return TierSlow
	case "4g":
		if c.DownlinkMbps >= 5 {
			return TierFast
		}
		return TierModerate
	}
	if c.DownlinkMbps > 0 && c.DownlinkMbps < 1.5 {
		return TierSlow
	}
	return TierModerate
}

// FixedTier returns a ConditionSource that always classifies to t.
// Used to pin the timeout multiplier when no live signal exists.
func FixedTier(t Tier) ConditionSource {
	var c Conditions
	switch t {
	case TierFast:
		c = Conditions{EffectiveType: "4g", DownlinkMbps: 10}
	case TierSlow:
		c = Conditions{EffectiveType: "3g"}
	case TierVerySlow:
		c = Conditions{EffectiveType: "2g"}
	default:
		c = Conditions{EffectiveType: "4g", DownlinkMbps: 2}
	}
	return staticConditions(c)
}

type staticConditions Conditions

func (s staticConditions) Sample() (Conditions, bool) { return Conditions(s), true }

// AdaptiveTimeout scales a base timeout by the network tier derived from
// src. A nil source, or one with no signal, defaults to moderate (1.5x).
func AdaptiveTimeout(base time.Duration, src ConditionSource) time.Duration {
	tier := TierModerate
	if src != nil {
		if cond, ok := src.Sample(); ok {
			tier = Classify(cond)
		}
	}
	return time.Duration(float64(base) * tier.Multiplier())
}
