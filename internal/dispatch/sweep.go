package dispatch

// SweepSummary counts sweep results by how they ended.
type SweepSummary struct {
	Claimed   int `json:"claimed"`
	Succeeded int `json:"succeeded"`
	Retrying  int `json:"retrying"`
	Failed    int `json:"failed"`
	Errored   int `json:"errored"`
}

func SummarizeSweep(results []AttemptResult) SweepSummary {
	summary := SweepSummary{Claimed: len(results)}
	for _, r := range results {
		switch {
		case r.Err != nil:
			summary.Errored++
		case r.Attempt.Status == StatusSuccess:
			summary.Succeeded++
		case r.Attempt.Status == StatusRetrying:
			summary.Retrying++
		default:
			summary.Failed++
		}
	}
	return summary
}
