package eventloop

import "time"

// Snapshot is a point-in-time view of a scheduler, for diagnostics only.
type Snapshot struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Stopped bool   `json:"stopped"`
	Exited  bool   `json:"exited"`

	Ready   int       `json:"ready"`
	Delayed int       `json:"delayed"`
	NextDue time.Time `json:"next_due"`

	// Executed counts tasks handed to the loop for execution.
	Executed uint64 `json:"executed"`
	// Promoted counts delayed tasks moved to the ready queue.
	Promoted uint64 `json:"promoted"`
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Name:     s.name,
		Running:  s.running,
		Stopped:  s.stopped,
		Exited:   s.exited,
		Ready:    s.ready.Length(),
		Delayed:  s.delayed.Len(),
		Executed: s.executed,
		Promoted: s.promoted,
	}
	if dt, ok := s.delayed.Peek(); ok {
		snap.NextDue = dt.Due
	}
	return snap
}
