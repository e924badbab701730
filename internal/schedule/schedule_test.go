package schedule

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

func TestTriads_Shape(t *testing.T) {
	if TriadCount != 4 || TriadSize != 3 {
		t.Fatalf("TriadCount = %d, TriadSize = %d, want 4 and 3", TriadCount, TriadSize)
	}
	if TriadCount*TriadSize != Steps {
		t.Errorf("%d triads of %d do not cover %d steps", TriadCount, TriadSize, Steps)
	}
	if TriadSize != domain.StreamCount {
		t.Errorf("TriadSize = %d, want one member per stream (%d)", TriadSize, domain.StreamCount)
	}
}

func TestTriads_PartitionSchedule(t *testing.T) {
	seen := make(map[int]int)
	for _, triad := range Triads {
		for _, s := range triad {
			seen[s]++
		}
		for i := 0; i < TriadSize; i++ {
			for j := i + 1; j < TriadSize; j++ {
				d := ((triad[j]-triad[i])%Steps + Steps) % Steps
				if d != TriadSpan && d != Steps-TriadSpan {
					t.Errorf("triad %v: %d and %d differ by %d mod 12", triad, triad[i], triad[j], d)
				}
			}
		}
	}
	for step := 1; step <= Steps; step++ {
		if seen[step] != 1 {
			t.Errorf("step %d appears in %d triads, want 1", step, seen[step])
		}
	}
}

func TestLookup_Table(t *testing.T) {
	for step := 1; step <= Steps; step++ {
		e, err := Lookup(step)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", step, err)
		}
		if e.Step != step {
			t.Errorf("Lookup(%d).Step = %d", step, e.Step)
		}
		if e.PhaseAngle != (step-1)*30 {
			t.Errorf("Lookup(%d).PhaseAngle = %d, want %d", step, e.PhaseAngle, (step-1)*30)
		}
		if want := domain.StreamID((step - 1) / TriadSpan); e.Stream != want {
			t.Errorf("Lookup(%d).Stream = %s, want %s", step, e.Stream, want)
		}
	}

	if e := MustLookup(1); e.Kind != domain.StepPivotal || e.Mode != domain.ModeExpressive {
		t.Errorf("step 1 = %+v, want pivotal expressive", e)
	}
	if e := MustLookup(8); e.Mode != domain.ModeReflective || e.Kind != domain.StepSalience {
		t.Errorf("step 8 = %+v, want reflective salience", e)
	}
}

func TestLookup_OutOfRange(t *testing.T) {
	for _, step := range []int{0, -1, 13, 100} {
		_, err := Lookup(step)
		if !errors.Is(err, domain.ErrScheduleContract) {
			t.Errorf("Lookup(%d) err = %v, want ErrScheduleContract", step, err)
		}
	}
}

func TestMustLookup_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for step 0")
		}
	}()
	MustLookup(0)
}

func TestLocalStep_Formula(t *testing.T) {
	tests := []struct {
		abs    int
		stream domain.StreamID
		want   int
	}{
		{1, domain.StreamPrimary, 1},
		{1, domain.StreamSecondary, 9},
		{1, domain.StreamTertiary, 5},
		{5, domain.StreamSecondary, 1},
		{9, domain.StreamTertiary, 1},
		{12, domain.StreamPrimary, 12},
		{12, domain.StreamSecondary, 8},
		{12, domain.StreamTertiary, 4},
	}
	for _, tt := range tests {
		if got := LocalStep(tt.abs, tt.stream); got != tt.want {
			t.Errorf("LocalStep(%d, %s) = %d, want %d", tt.abs, tt.stream, got, tt.want)
		}
	}

	for abs := 1; abs <= Steps; abs++ {
		for _, s := range domain.Streams {
			o := Offset(s)
			want := (((abs-1-o)%12)+12)%12 + 1
			if got := LocalStep(abs, s); got != want {
				t.Errorf("LocalStep(%d, %s) = %d, want %d", abs, s, got, want)
			}
			if got := ((abs - StartStep(s) + 12) % 12) + 1; got != want {
				t.Errorf("start-step form disagrees at abs=%d stream=%s", abs, s)
			}
		}
	}
}

func TestCursors_Advance(t *testing.T) {
	c := NewCursors(1)
	if got := c.LocalSteps(); got != [3]int{1, 9, 5} {
		t.Fatalf("LocalSteps at 1 = %v, want [1 9 5]", got)
	}
	if !c[domain.StreamPrimary].Active || c[domain.StreamSecondary].Active || c[domain.StreamTertiary].Active {
		t.Errorf("only primary should be active at step 1: %+v", c)
	}

	c.Advance(6)
	if !c[domain.StreamSecondary].Active {
		t.Errorf("secondary should own step 6")
	}
	if c[domain.StreamSecondary].LocalStep != 2 {
		t.Errorf("secondary local step = %d, want 2", c[domain.StreamSecondary].LocalStep)
	}
	if c[domain.StreamSecondary].Term != MustLookup(2).Term {
		t.Errorf("secondary term not taken from its local step")
	}
	if c[domain.StreamTertiary].Offset != 8 || c[domain.StreamTertiary].StartStep != 9 {
		t.Errorf("tertiary offset/start = %d/%d, want 8/9",
			c[domain.StreamTertiary].Offset, c[domain.StreamTertiary].StartStep)
	}
}

func TestDetect_EveryStepConverges(t *testing.T) {
	for abs := 1; abs <= Steps; abs++ {
		c := NewCursors(abs)
		tp := Detect(&c)
		if tp.TimePoint != TriadIndex(abs) {
			t.Errorf("abs %d: time point = %d, want %d", abs, tp.TimePoint, TriadIndex(abs))
		}
		if !sameSet(tp.Steps, Triads[tp.TimePoint]) {
			t.Errorf("abs %d: steps %v not triad %v", abs, tp.Steps, Triads[tp.TimePoint])
		}
	}
}

func TestDetect_BrokenCursorsPanic(t *testing.T) {
	c := NewCursors(1)
	c[domain.StreamSecondary].LocalStep = 2
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, domain.ErrScheduleContract) {
			t.Fatalf("recover = %v, want ErrScheduleContract", r)
		}
	}()
	Detect(&c)
}

func TestCouplings_PerTimePoint(t *testing.T) {
	want := [TriadCount][]domain.Coupling{
		{domain.CouplingPerceptionMemory},
		{domain.CouplingAssessmentPlanning},
		{domain.CouplingAssessmentPlanning, domain.CouplingBalancedIntegration},
		{domain.CouplingPerceptionMemory, domain.CouplingBalancedIntegration},
	}
	for abs := 1; abs <= TriadCount; abs++ {
		c := NewCursors(abs)
		got := Couplings(&c)
		if !reflect.DeepEqual(got, want[abs-1]) {
			t.Errorf("abs %d couplings = %v, want %v", abs, got, want[abs-1])
		}
	}
}

func TestNextStep_Wraps(t *testing.T) {
	if NextStep(12) != 1 || NextStep(1) != 2 {
		t.Errorf("NextStep wrap broken: 12->%d 1->%d", NextStep(12), NextStep(1))
	}
}
