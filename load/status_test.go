package load

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusOpen, StatusAccepted}:       true,
		{StatusAccepted, StatusInTransit}:  true,
		{StatusAccepted, StatusDelivered}:  true,
		{StatusInTransit, StatusDelivered}: true,
	}

	all := []Status{StatusOpen, StatusAccepted, StatusInTransit, StatusDelivered}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusAccepted.IsActive() || !StatusInTransit.IsActive() {
		t.Error("accepted and in_transit are active")
	}
	if StatusOpen.IsActive() || StatusDelivered.IsActive() {
		t.Error("open and delivered are not active")
	}
	if !StatusOpen.IsValid() || Status("cancelled").IsValid() {
		t.Error("validity check wrong")
	}
}
