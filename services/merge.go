package services

import (
	"math"
	"sort"
	"time"

	"github.com/paceline/paceline/utils"
)

// StepObservation is one provider-attributed step count over a half-open
// [Start, End) interval.
type StepObservation struct {
	Provider  string    `json:"provider"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Steps     int       `json:"steps"`
	SessionID string    `json:"session_id,omitempty"`
}

// MergeObservations reduces a set of possibly overlapping, possibly re-issued
// observations for one calendar day to a single deduplicated step total.
//
// Observations are clipped to [dayStart, dayEnd) and treated as uniform step
// rates over their reported interval. The day is swept as elementary segments
// between interval boundaries; on each segment the highest-precedence provider
// with coverage wins, and within that provider the densest covering interval
// counts exactly once, so re-reported or widened intervals never double-count
// a time range. The result is a pure function of the observation set: input
// order and ingestion time play no part.
func MergeObservations(obs []StepObservation, dayStart, dayEnd time.Time, precedence []string) int {
	rank := make(map[string]int, len(precedence))
	for i, p := range precedence {
		rank[p] = i
	}

	type span struct {
		provider   string
		start, end time.Time
		rate       float64 // steps per second over the reported interval
	}

	spans := make([]span, 0, len(obs))
	boundSet := make(map[int64]time.Time)
	for _, o := range obs {
		if !o.End.After(o.Start) || o.Steps < 0 {
			if utils.Sugar != nil {
				utils.Sugar.Debugw("dropping malformed observation",
					"provider", o.Provider, "start", o.Start, "end", o.End, "steps", o.Steps)
			}
			continue
		}
		if o.Steps == 0 {
			continue
		}
		start, end := o.Start, o.End
		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(dayEnd) {
			end = dayEnd
		}
		if !end.After(start) {
			continue
		}
		spans = append(spans, span{
			provider: o.Provider,
			start:    start,
			end:      end,
			rate:     float64(o.Steps) / o.End.Sub(o.Start).Seconds(),
		})
		boundSet[start.UnixNano()] = start
		boundSet[end.UnixNano()] = end
	}
	if len(spans) == 0 {
		return 0
	}

	bounds := make([]time.Time, 0, len(boundSet))
	for _, t := range boundSet {
		bounds = append(bounds, t)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].Before(bounds[j]) })

	var total float64
	for i := 0; i+1 < len(bounds); i++ {
		segStart, segEnd := bounds[i], bounds[i+1]

		bestRank := -1
		bestName := ""
		bestRate := 0.0
		covered := false
		for _, s := range spans {
			// boundaries include every span edge, so a span either covers the
			// whole segment or none of it
			if s.start.After(segStart) || s.end.Before(segEnd) {
				continue
			}
			r, ok := rank[s.provider]
			if !ok {
				r = len(precedence)
			}
			switch {
			case !covered, r < bestRank, r == bestRank && s.provider < bestName:
				covered = true
				bestRank = r
				bestName = s.provider
				bestRate = s.rate
			case r == bestRank && s.provider == bestName:
				if s.rate > bestRate {
					bestRate = s.rate
				}
			}
		}
		if covered {
			total += bestRate * segEnd.Sub(segStart).Seconds()
		}
	}
	return int(math.Round(total))
}

// SessionRefs collects the distinct non-empty session identifiers of a batch.
func SessionRefs(obs []StepObservation) []string {
	seen := make(map[string]bool, len(obs))
	var ids []string
	for _, o := range obs {
		if o.SessionID == "" || seen[o.SessionID] {
			continue
		}
		seen[o.SessionID] = true
		ids = append(ids, o.SessionID)
	}
	return ids
}
