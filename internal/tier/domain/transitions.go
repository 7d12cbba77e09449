package domain

// GuardInput carries the ambient inputs every timing guard needs: the current
// time, the caller-supplied timestamp (0 when the operation takes none), and
// the configured interval bounds.
type GuardInput struct {
	Now          int64
	Timestamp    int64
	ReinitWindow int64
	MaxTimestamp int64
}

// edge is one legal (operation, source status) pair. Timing is nil when the
// edge has no timing precondition.
type edge struct {
	From   TierStatus
	To     TierStatus
	Timing func(t Tier, in GuardInput) error
}

// transitions is the single authoritative transition table. Every life-cycle
// operation resolves its target status and timing precondition here; no
// operation keeps its own status list.
var transitions = map[Op][]edge{
	OpSetDuration: {
		{From: TierStatusNotLive, To: TierStatusReadyToStart},
		{From: TierStatusReadyToStart, To: TierStatusReadyToStart},
		{From: TierStatusReadyToLive, To: TierStatusReadyToLive},
		{From: TierStatusLive, To: TierStatusLive, Timing: withinReinitWindow},
		{From: TierStatusPaused, To: TierStatusPaused, Timing: afterPauseBoundary},
	},
	OpSetStart: {
		{From: TierStatusReadyToStart, To: TierStatusReadyToLive, Timing: futureBoundedTimestamp},
		{From: TierStatusReadyToLive, To: TierStatusReadyToLive, Timing: futureBoundedTimestamp},
	},
	OpActivate: {
		{From: TierStatusReadyToLive, To: TierStatusLive, Timing: beforeStart},
	},
	OpPause: {
		{From: TierStatusLive, To: TierStatusPaused, Timing: allOf(withinReinitWindow, futureBoundedTimestamp)},
	},
	OpSetEnd: {
		{From: TierStatusLive, To: TierStatusEnding, Timing: allOf(withinReinitWindow, futureBoundedTimestamp)},
	},
	OpUnpause: {
		{From: TierStatusPaused, To: TierStatusLive},
	},
	OpFinish: {
		{From: TierStatusPaused, To: TierStatusFinished, Timing: afterPauseBoundary},
		{From: TierStatusEnding, To: TierStatusFinished, Timing: afterEndBoundary},
	},
}

// Transition resolves the target status for op on t. A missing (op, status)
// edge fails ErrIllegalStateTransition; a present edge whose timing guard
// rejects fails ErrIllegalTiming.
func Transition(t Tier, op Op, in GuardInput) (TierStatus, error) {
	for _, e := range transitions[op] {
		if e.From != t.Status {
			continue
		}
		if e.Timing != nil {
			if err := e.Timing(t, in); err != nil {
				return "", err
			}
		}
		return e.To, nil
	}
	return "", ErrIllegalStateTransition
}

// ParamsSettable reports whether upstream parameters (duration, fees) of t
// may currently change: inside an ongoing Live period they are frozen until
// the reinit window before the period's end; once Paused or Ending they thaw
// only after the boundary has passed. Every other status is always settable.
func ParamsSettable(t Tier, now, reinitWindow int64) error {
	in := GuardInput{Now: now, ReinitWindow: reinitWindow}
	switch t.Status {
	case TierStatusLive:
		return withinReinitWindow(t, in)
	case TierStatusPaused:
		return afterPauseBoundary(t, in)
	case TierStatusEnding:
		return afterEndBoundary(t, in)
	default:
		return nil
	}
}

func withinReinitWindow(t Tier, in GuardInput) error {
	if in.Now < t.StartAt+t.Duration-in.ReinitWindow {
		return ErrIllegalTiming
	}
	return nil
}

func afterPauseBoundary(t Tier, in GuardInput) error {
	if in.Now <= t.PauseAt {
		return ErrIllegalTiming
	}
	return nil
}

func afterEndBoundary(t Tier, in GuardInput) error {
	if in.Now <= t.EndAt {
		return ErrIllegalTiming
	}
	return nil
}

func futureBoundedTimestamp(_ Tier, in GuardInput) error {
	if in.Timestamp <= in.Now || in.Timestamp > in.MaxTimestamp {
		return ErrIllegalTiming
	}
	return nil
}

func beforeStart(t Tier, in GuardInput) error {
	if in.Now >= t.StartAt {
		return ErrIllegalTiming
	}
	return nil
}

func allOf(guards ...func(Tier, GuardInput) error) func(Tier, GuardInput) error {
	return func(t Tier, in GuardInput) error {
		for _, guard := range guards {
			if err := guard(t, in); err != nil {
				return err
			}
		}
		return nil
	}
}
