package relevance

// Sample is the part of a logged query the gate decision depends on when no
// category was requested: a state change needs only the raw count and the
// best score.
type Sample struct {
	// Retrieved is the number of raw results.
	Retrieved int

	// TopScore is the highest similarity among them.
	TopScore float32
}

// Calibration counts the states a set of samples would land in at one
// threshold.
type Calibration struct {
	Threshold     float32 `json:"threshold"`
	Confident     int     `json:"confident"`
	LowConfidence int     `json:"low_confidence"`
	NoEvidence    int     `json:"no_evidence"`
}

// ConfidentRate is the share of samples that would be answered from evidence.
func (c Calibration) ConfidentRate() float64 {
	total := c.Confident + c.LowConfidence + c.NoEvidence
	if total == 0 {
		return 0
	}
	return float64(c.Confident) / float64(total)
}

// Replay re-runs the state decision for each threshold over samples. Output
// order follows thresholds.
func Replay(samples []Sample, thresholds []float32) []Calibration {
	out := make([]Calibration, 0, len(thresholds))
	for _, t := range thresholds {
		c := Calibration{Threshold: t}
		for _, s := range samples {
			switch {
			case s.Retrieved == 0:
				c.NoEvidence++
			case s.TopScore >= t:
				c.Confident++
			default:
				c.LowConfidence++
			}
		}
		out = append(out, c)
	}
	return out
}
