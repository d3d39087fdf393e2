package audio

// Loudness normalization works in hundredths of a dB throughout, matching
// the units the catalog reports.
const (
	// ExtremeLoudnessMb bounds plausible measured loudness. A value
	// outside ±20 dB is treated as zero and flagged instead of applied.
	ExtremeLoudnessMb = 2000
)

// toMb converts dB to hundredths of dB, treating nil as 0.
func toMb(db *float64) int {
	if db == nil {
		return 0
	}
	return int(*db * 100)
}

// TargetGainMb computes the normalization gain in hundredths of dB:
// base gain + per-track boost - measured loudness. When the measured
// loudness is implausibly extreme its contribution is dropped and
// rejected is true so callers can warn the user.
func TargetGainMb(baseGainDb float64, boostDb, loudnessDb *float64) (gainMb int, rejected bool) {
	loudnessMb := toMb(loudnessDb)
	if loudnessMb < -ExtremeLoudnessMb || loudnessMb > ExtremeLoudnessMb {
		loudnessMb = 0
		rejected = true
	}
	return toMb(&baseGainDb) + toMb(boostDb) - loudnessMb, rejected
}
