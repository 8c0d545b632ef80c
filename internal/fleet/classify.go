package fleet

// Classify derives a bin's status. Inactivity wins over fill so that an old,
// nearly empty bin is still flagged.
func Classify(b Bin, th Thresholds) Status {
	switch {
	case b.LastEmptiedDaysAgo > th.Inactive:
		return StatusInactive
	case b.Fill >= th.Full:
		return StatusFull
	case b.Fill >= th.NearlyFull:
		return StatusNearlyFull
	default:
		return StatusOK
	}
}

// ClassifyAll sets Status on every bin in place and returns the slice.
func ClassifyAll(bins []Bin, th Thresholds) []Bin {
	for i := range bins {
		bins[i].Status = Classify(bins[i], th)
	}
	return bins
}

// NeedsService returns the non-hub bins classified full or inactive.
func NeedsService(bins []Bin, th Thresholds) []Bin {
	out := make([]Bin, 0, len(bins))
	for _, b := range bins {
		if b.IsHub() {
			continue
		}
		b.Status = Classify(b, th)
		if b.Status == StatusFull || b.Status == StatusInactive {
			out = append(out, b)
		}
	}
	return out
}
