package alerts

import "testing"

func TestDecide(t *testing.T) {
	cases := []struct {
		name   string
		active bool
		value  float64
		want   Transition
	}{
		{name: "idle above max starts", active: false, value: 30, want: TransitionStart},
		{name: "idle below min starts", active: false, value: 10, want: TransitionStart},
		{name: "idle in range is noop", active: false, value: 20, want: TransitionNoop},
		{name: "idle at min is noop", active: false, value: 18, want: TransitionNoop},
		{name: "idle at max is noop", active: false, value: 26, want: TransitionNoop},
		{name: "active out of range continues", active: true, value: 32, want: TransitionContinue},
		{name: "active in range resolves", active: true, value: 20, want: TransitionResolve},
		{name: "active at max resolves", active: true, value: 26, want: TransitionResolve},
		{name: "active at min resolves", active: true, value: 18, want: TransitionResolve},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.active, tc.value, 18, 26); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestBreach(t *testing.T) {
	status, bound := Breach(30, 18, 26)
	if status != StatusHigh || bound != 26 {
		t.Fatalf("expected HIGH/26, got %s/%v", status, bound)
	}
	status, bound = Breach(-5, 0, 50)
	if status != StatusLow || bound != 0 {
		t.Fatalf("expected LOW/0, got %s/%v", status, bound)
	}
}

func TestDeviationPercent(t *testing.T) {
	cases := []struct {
		name  string
		value float64
		bound float64
		want  float64
	}{
		{name: "rounded to one decimal", value: 30, bound: 26, want: 15.4},
		{name: "zero bound uses divisor one", value: -5, bound: 0, want: 500},
		{name: "boundary reads zero", value: 26, bound: 26, want: 0},
		{name: "below min", value: 9, bound: 18, want: 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeviationPercent(tc.value, tc.bound); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
