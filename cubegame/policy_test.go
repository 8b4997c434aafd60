package cubegame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSprintPolicyAfterSubmit(t *testing.T) {
	pol := SprintPolicy{StageCount: 3}
	assert.Equal(t, ModeSprint, pol.Mode())

	prog := func(cleared uint32, total uint64) PlayerProgress {
		p := PlayerProgress{StagesCleared: cleared}
		if cleared >= 3 {
			p.BestTotalMs = total
		}
		return p
	}

	tests := []struct {
		name         string
		a, b         PlayerProgress
		submitterIsA bool
		want         Winner
	}{{
		name:         "submitter not finished",
		a:            prog(2, 0),
		b:            prog(0, 0),
		submitterIsA: true,
		want:         WinnerNone,
	}, {
		name:         "a finishes first",
		a:            prog(3, 3100),
		b:            prog(1, 0),
		submitterIsA: true,
		want:         WinnerA,
	}, {
		name:         "b finishes first",
		a:            prog(2, 0),
		b:            prog(3, 2800),
		submitterIsA: false,
		want:         WinnerB,
	}, {
		name:         "both finished, a faster",
		a:            prog(3, 2900),
		b:            prog(3, 3100),
		submitterIsA: false,
		want:         WinnerA,
	}, {
		name:         "both finished, b faster",
		a:            prog(3, 3100),
		b:            prog(3, 2900),
		submitterIsA: true,
		want:         WinnerB,
	}, {
		name:         "both finished, tie goes to a",
		a:            prog(3, 3000),
		b:            prog(3, 3000),
		submitterIsA: false,
		want:         WinnerA,
	}}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := pol.AfterSubmit(tc.a, tc.b, tc.submitterIsA)
			assert.Equal(t, tc.want, got)
		})
	}

	// Sprint never decides at an explicit finalize.
	assert.Equal(t, WinnerNone, pol.AtFinalize(prog(3, 100), prog(0, 0)))
}

func TestEndurancePolicyAtFinalize(t *testing.T) {
	pol := EndurancePolicy{}
	assert.Equal(t, ModeEndurance, pol.Mode())

	run := func(best uint64) PlayerProgress {
		return PlayerProgress{BestRunMs: best}
	}

	tests := []struct {
		name string
		a, b PlayerProgress
		want Winner
	}{{
		name: "a higher best",
		a:    run(700),
		b:    run(650),
		want: WinnerA,
	}, {
		name: "b higher best",
		a:    run(500),
		b:    run(900),
		want: WinnerB,
	}, {
		name: "tie goes to a",
		a:    run(600),
		b:    run(600),
		want: WinnerA,
	}, {
		name: "no runs at all still picks a",
		a:    run(0),
		b:    run(0),
		want: WinnerA,
	}}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := pol.AtFinalize(tc.a, tc.b)
			assert.Equal(t, tc.want, got)
		})
	}

	// Endurance submissions never decide on their own.
	assert.Equal(t, WinnerNone, pol.AfterSubmit(run(900), run(100), true))
}
