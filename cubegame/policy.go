package cubegame

// Winner names which player a policy picked.
type Winner int

const (
	WinnerNone Winner = iota
	WinnerA
	WinnerB
)

// WinnerPolicy decides when a session ends and who won. Policies are pure:
// they see progress values and return a verdict, and the registry turns the
// verdict into the one-and-only winner commit.
type WinnerPolicy interface {
	Mode() Mode

	// AfterSubmit runs once a proof-gated submission has been applied.
	// submitterIsA names whose progress just changed.
	AfterSubmit(a, b PlayerProgress, submitterIsA bool) Winner

	// AtFinalize runs on an explicit finalize request.
	AtFinalize(a, b PlayerProgress) Winner
}

// SprintPolicy ends the session the moment one player clears every stage.
// Should both somehow stand finished at evaluation time, the lower combined
// time wins and player A takes ties.
type SprintPolicy struct {
	StageCount uint32
}

func (SprintPolicy) Mode() Mode { return ModeSprint }

func (p SprintPolicy) AfterSubmit(a, b PlayerProgress, submitterIsA bool) Winner {
	sub, other := a, b
	if !submitterIsA {
		sub, other = b, a
	}
	if !sub.Finished(p.StageCount) {
		return WinnerNone
	}
	if !other.Finished(p.StageCount) {
		if submitterIsA {
			return WinnerA
		}
		return WinnerB
	}
	if a.BestTotalMs <= b.BestTotalMs {
		return WinnerA
	}
	return WinnerB
}

// AtFinalize never decides: sprint sessions end on their own.
func (SprintPolicy) AtFinalize(a, b PlayerProgress) Winner { return WinnerNone }

// EndurancePolicy only decides at finalize: the higher best run wins and
// player A takes ties, including the no-submissions 0-0 case.
type EndurancePolicy struct{}

func (EndurancePolicy) Mode() Mode { return ModeEndurance }

func (EndurancePolicy) AfterSubmit(a, b PlayerProgress, submitterIsA bool) Winner {
	return WinnerNone
}

func (EndurancePolicy) AtFinalize(a, b PlayerProgress) Winner {
	if b.BestRunMs > a.BestRunMs {
		return WinnerB
	}
	return WinnerA
}
