package jobs

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	_ "github.com/troopledger/troopledger/testing"
)

func TestNewReconcileTask(t *testing.T) {
	task, err := NewReconcileTask(ReconcilePayload{FailOnDrift: true})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if task.Type() != TaskLedgerReconcile {
		t.Fatalf("task type = %q", task.Type())
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !payload.FailOnDrift {
		t.Fatal("fail_on_drift flag lost in round trip")
	}
}

func TestFormatAmountKeepsDecimalExactness(t *testing.T) {
	j := NewReconcileJob(nil, nil)
	cases := []struct {
		in   string
		want string
	}{
		{"0.00", "0.00"},
		{"-0.50", "-0.50"},
		{"1234567.89", "1,234,567.89"},
		// Past float64's 53-bit mantissa; a float round trip would drift.
		{"123456789012345678.91", "123,456,789,012,345,678.91"},
		{"-98765432109876543.21", "-98,765,432,109,876,543.21"},
	}
	for _, tc := range cases {
		if got := j.formatAmount(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Errorf("formatAmount(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBalanceDriftDelta(t *testing.T) {
	drift := BalanceDrift{
		Stored:  decimal.RequireFromString("100.00"),
		Derived: decimal.RequireFromString("87.25"),
	}
	if got := drift.Delta(); !got.Equal(decimal.RequireFromString("12.75")) {
		t.Fatalf("delta = %s, want 12.75", got)
	}
}
