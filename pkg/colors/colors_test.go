package colors

import (
	"testing"

	"github.com/harrisonrobin/hubsync/pkg/model"
)

func TestAvatarIndexStable(t *testing.T) {
	names := []string{"", "A", "MUCHLIS MUSTARI [Ops1187094]", "ANGGA [Ops1187093]", "Ñandú"}
	for _, n := range names {
		i := AvatarIndex(n)
		if i < 0 || i >= len(Avatars) {
			t.Errorf("AvatarIndex(%q) = %d out of range", n, i)
		}
		if AvatarIndex(n) != i {
			t.Errorf("AvatarIndex(%q) not stable", n)
		}
	}
}

func TestAvatarIndexKnownValues(t *testing.T) {
	// "A" hashes to 65, "AB" to 65*31+66 = 2081.
	if got := AvatarIndex("A"); got != 65%7 {
		t.Errorf("AvatarIndex(A) = %d, want %d", got, 65%7)
	}
	if got := AvatarIndex("AB"); got != 2081%7 {
		t.Errorf("AvatarIndex(AB) = %d, want %d", got, 2081%7)
	}
}

func TestStatusColors(t *testing.T) {
	if Status(model.Completed) == Status(model.Pending) || Status(model.Ongoing) == Status(model.Pending) {
		t.Error("Expected distinct status colors")
	}
}
