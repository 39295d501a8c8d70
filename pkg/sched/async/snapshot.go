package async

// Snapshot is a point-in-time view of a scheduler, for diagnostics only.
// Host-side counts are published between steps and can lag by one step.
type Snapshot struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Stopped bool   `json:"stopped"`
	Exited  bool   `json:"exited"`

	// Pending counts commands not yet received by the host.
	Pending int `json:"pending"`
	// Runnable counts steps queued on the host.
	Runnable int `json:"runnable"`
	// Sleeping counts deferred actions and coroutines waiting on a timer.
	Sleeping int `json:"sleeping"`
	// Suspended counts live coroutines, started or not.
	Suspended int `json:"suspended"`

	// Executed counts host steps run: tasks and coroutine resumptions.
	Executed uint64 `json:"executed"`
}

func (s *Scheduler) Snapshot() Snapshot {
	return Snapshot{
		Name:      s.name,
		Running:   s.running.Load(),
		Stopped:   s.stopped.Load(),
		Exited:    s.exited.Load(),
		Pending:   s.mb.len(),
		Runnable:  int(s.stats.runnable.Load()),
		Sleeping:  int(s.stats.sleeping.Load()),
		Suspended: int(s.stats.suspended.Load()),
		Executed:  s.stats.executed.Load(),
	}
}
