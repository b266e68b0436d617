package queue

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusFetching, true},
		{StatusFetching, StatusPacking, true},
		{StatusPacking, StatusDelivering, true},
		{StatusDelivering, StatusDone, true},
		{StatusFetching, StatusFailed, true},
		{StatusPacking, StatusFailed, true},
		{StatusDelivering, StatusFailed, true},
		{StatusPending, StatusPacking, false},
		{StatusFetching, StatusDelivering, false},
		{StatusFetching, StatusDone, false},
		{StatusDone, StatusFailed, false},
		{StatusFailed, StatusPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestJobAdvanceSetsFinishedAt(t *testing.T) {
	job := &Job{ID: 1, Status: StatusFetching}
	if err := job.Advance(StatusDone); err == nil {
		t.Fatal("expected skipping packing to fail")
	}
	if err := job.Fail("page 3 of 4: HTTP 404"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if job.Status != StatusFailed || job.FinishedAt == nil {
		t.Fatalf("unexpected job after Fail: %#v", job)
	}
	if err := job.Fail("again"); err == nil {
		t.Fatal("terminal job must not transition")
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus(" Fetching "); !ok || status != StatusFetching {
		t.Fatalf("ParseStatus = %q, %v", status, ok)
	}
	if _, ok := ParseStatus("ripping"); ok {
		t.Fatal("unknown status accepted")
	}
	if !StatusDone.IsTerminal() || StatusPacking.IsTerminal() {
		t.Fatal("IsTerminal mismatch")
	}
	if !StatusDelivering.IsProcessing() || StatusPending.IsProcessing() {
		t.Fatal("IsProcessing mismatch")
	}
}
