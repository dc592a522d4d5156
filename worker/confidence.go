package worker

import "strings"

// Confidence length thresholds. Longer answers earn a modest bump; the
// dominant signal is capability overlap.
const (
	confidenceBase       = 0.5
	lengthThresholdShort = 100
	lengthThresholdLong  = 400
	lengthBonus          = 0.1
	overlapBonusPerTag   = 0.05
	overlapBonusCap      = 0.3
)

// Confidence derives a score in [0,1] from a response and the descriptor of
// the worker that produced it. It is a pure function: a base value raised by
// response-length thresholds and by lexical overlap between the worker's
// declared capability tags and its own output, rewarding
// specialization-consistent answers.
func Confidence(text string, d Descriptor) float64 {
	if text == "" {
		return 0
	}
	score := confidenceBase
	if len(text) >= lengthThresholdShort {
		score += lengthBonus
	}
	if len(text) >= lengthThresholdLong {
		score += lengthBonus
	}

	lower := strings.ToLower(text)
	overlap := 0.0
	for _, tag := range d.Capabilities {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if strings.Contains(lower, tag) {
			overlap += overlapBonusPerTag
		}
	}
	if overlap > overlapBonusCap {
		overlap = overlapBonusCap
	}
	score += overlap

	if score > 1 {
		score = 1
	}
	return score
}
