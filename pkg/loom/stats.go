package loom

import "sync/atomic"

// Stats counts engine activity. Counters are atomic so exporters can read
// them off-loop.
type Stats struct {
	Renders        atomic.Int64
	Commits        atomic.Int64
	Mutations      atomic.Int64
	Effects        atomic.Int64
	Updates        atomic.Int64
	ErrorsAbsorbed atomic.Int64
}

// StatsSnapshot is a point-in-time copy of a root's counters.
type StatsSnapshot struct {
	Renders        int64
	Commits        int64
	Mutations      int64
	Effects        int64
	Updates        int64
	ErrorsAbsorbed int64
	LiveInstances  int
}

func (s *Stats) snapshot(live int) StatsSnapshot {
	return StatsSnapshot{
		Renders:        s.Renders.Load(),
		Commits:        s.Commits.Load(),
		Mutations:      s.Mutations.Load(),
		Effects:        s.Effects.Load(),
		Updates:        s.Updates.Load(),
		ErrorsAbsorbed: s.ErrorsAbsorbed.Load(),
		LiveInstances:  live,
	}
}
