// ABOUTME: Tests for staircase level policies
// ABOUTME: Verifies level steps and termination for each policy
package audiometry

import (
	"testing"
)

type step struct {
	response  Response
	wantLevel int
	wantDone  bool
}

func runSteps(t *testing.T, p Policy, start int, steps []step) *TrialState {
	t.Helper()
	st := newTrialState(Left, 1000, start)
	for i, s := range steps {
		level := st.LevelHL
		threshold, done := p.Apply(st, s.response)
		if done != s.wantDone {
			t.Fatalf("step %d (%s at %d): expected done=%v, got %v", i, s.response, level, s.wantDone, done)
		}
		if done {
			if threshold != s.wantLevel {
				t.Errorf("step %d: expected threshold %d, got %d", i, s.wantLevel, threshold)
			}
			return st
		}
		if st.LevelHL != s.wantLevel {
			t.Errorf("step %d: expected next level %d, got %d", i, s.wantLevel, st.LevelHL)
		}
	}
	return st
}

func TestSingleResponsePolicy(t *testing.T) {
	p := SingleResponse{StepUpDB: 5}

	runSteps(t, p, 20, []step{
		{Missed, 25, false},
		{TimedOut, 30, false},
		{Missed, 35, false},
		{Heard, 35, true},
	})

	if p.Name() != PolicySingle {
		t.Errorf("expected name %q, got %q", PolicySingle, p.Name())
	}
}

func TestSingleResponseResetsAttempts(t *testing.T) {
	st := newTrialState(Left, 1000, 20)
	st.AttemptsAtLevel = 1

	SingleResponse{StepUpDB: 5}.Apply(st, Missed)
	if st.AttemptsAtLevel != 0 {
		t.Errorf("expected attempts reset on level change, got %d", st.AttemptsAtLevel)
	}
}

func TestHughsonWestlakePolicy(t *testing.T) {
	p := HughsonWestlake{StepUpDB: 5, StepDownDB: 10, Confirmations: 2, MinLevelHL: -10}

	runSteps(t, p, 20, []step{
		{Heard, 10, false},
		{Heard, 0, false},
		{Missed, 5, false},
		{Heard, -5, false},
		{Missed, 0, false},
		{TimedOut, 5, false},
		{Heard, 5, true},
	})
}

func TestHughsonWestlakeDescendingHeardDoesNotCount(t *testing.T) {
	p := HughsonWestlake{StepUpDB: 5, StepDownDB: 10, Confirmations: 1, MinLevelHL: -10}

	// First heard response is on the initial descent and must not terminate
	runSteps(t, p, 20, []step{
		{Heard, 10, false},
		{Missed, 15, false},
		{Heard, 15, true},
	})
}

func TestHughsonWestlakeFloor(t *testing.T) {
	p := HughsonWestlake{StepUpDB: 5, StepDownDB: 10, Confirmations: 2, MinLevelHL: -10}

	runSteps(t, p, 20, []step{
		{Heard, 10, false},
		{Heard, 0, false},
		{Heard, -10, false},
		{Heard, -10, false},
		{Heard, -10, true},
	})
}

func TestResponseNegative(t *testing.T) {
	tests := []struct {
		r    Response
		want bool
	}{
		{Heard, false},
		{Missed, true},
		{TimedOut, true},
	}

	for _, tt := range tests {
		if got := tt.r.Negative(); got != tt.want {
			t.Errorf("%s: expected negative=%v, got %v", tt.r, tt.want, got)
		}
	}
}

func TestPolicyByName(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", PolicySingle, false},
		{"single", PolicySingle, false},
		{"Hughson-Westlake", PolicyHughsonWestlake, false},
		{" hughson-westlake ", PolicyHughsonWestlake, false},
		{"bekesy", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := PolicyByName(tt.name, cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unknown policy")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, p.Name())
			}
		})
	}
}

func TestPolicyByNameCarriesSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepUpDB = 2
	cfg.StepDownDB = 4
	cfg.Confirmations = 0
	cfg.MinLevelHL = -5

	p, err := PolicyByName(PolicyHughsonWestlake, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hw, ok := p.(HughsonWestlake)
	if !ok {
		t.Fatalf("expected HughsonWestlake, got %T", p)
	}
	if hw.StepUpDB != 2 || hw.StepDownDB != 4 || hw.MinLevelHL != -5 {
		t.Errorf("expected steps from config, got %+v", hw)
	}
	if hw.Confirmations != DefaultConfirmations {
		t.Errorf("expected default confirmations, got %d", hw.Confirmations)
	}
}
