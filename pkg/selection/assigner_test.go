package selection

import (
	"errors"
	"testing"

	"github.com/btasdelen/arrview/pkg/ndarray"
)

func newAssigner(t *testing.T, shape ...int) *Assigner {
	t.Helper()
	a, err := NewAssigner(shape)
	if err != nil {
		t.Fatalf("Failed to create assigner: %v", err)
	}
	return a
}

// fullAxes counts the axes selected over their whole extent
func fullAxes(a *Assigner) int {
	n := 0
	for axis, s := range a.CurrentSlices() {
		if s == ndarray.All(a.shape[axis]) && s.Len() > 1 {
			n++
		} else if s.Len() != 1 && s != ndarray.All(a.shape[axis]) {
			return -1
		}
	}
	return n
}

// TestDefaults verifies the default role layout for every rank
func TestDefaults(t *testing.T) {
	tests := []struct {
		shape []int
		roles [3]int
		full  int
	}{
		{[]int{5}, [3]int{0, 0, 0}, 1},
		{[]int{5, 6}, [3]int{0, 1, 0}, 2},
		{[]int{5, 6, 7}, [3]int{0, 1, 2}, 2},
		{[]int{5, 6, 7, 8, 9}, [3]int{0, 1, 2}, 2},
	}
	for _, tt := range tests {
		a := newAssigner(t, tt.shape...)
		if a.Roles() != tt.roles {
			t.Errorf("Shape %v: expected roles %v, got %v", tt.shape, tt.roles, a.Roles())
		}
		if got := fullAxes(a); got != tt.full {
			t.Errorf("Shape %v: expected %d full axes, got %d", tt.shape, tt.full, got)
		}
	}
}

// TestAssignRoleFromUnboundAxis verifies that the previous holder is unbound and reset
func TestAssignRoleFromUnboundAxis(t *testing.T) {
	a := newAssigner(t, 4, 5, 6, 7)
	if err := a.SetIndex(3, 4); err != nil {
		t.Fatalf("SetIndex failed: %v", err)
	}

	if err := a.AssignRole(3, Row); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}
	if a.Axis(Row) != 3 {
		t.Errorf("Expected row axis 3, got %d", a.Axis(Row))
	}
	if a.RoleOf(0) != Unbound {
		t.Errorf("Expected axis 0 unbound, got %v", a.RoleOf(0))
	}
	if a.Index(0) != 0 {
		t.Errorf("Expected axis 0 index 0, got %d", a.Index(0))
	}
	if a.Index(3) != All {
		t.Errorf("Expected axis 3 full range, got %d", a.Index(3))
	}
	if fullAxes(a) != 2 {
		t.Errorf("Expected 2 full axes, got %d", fullAxes(a))
	}
}

// TestAssignRoleSwapsBoundAxes verifies that roles stay distinct when a bound axis moves
func TestAssignRoleSwapsBoundAxes(t *testing.T) {
	a := newAssigner(t, 4, 5, 6)
	if err := a.SetIndex(2, 3); err != nil {
		t.Fatalf("SetIndex failed: %v", err)
	}

	// Dynamic axis 2 becomes the row; the old row axis 0 becomes dynamic.
	if err := a.AssignRole(2, Row); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}
	if a.Roles() != [3]int{2, 1, 0} {
		t.Errorf("Expected roles [2 1 0], got %v", a.Roles())
	}
	if a.Index(0) != 0 {
		t.Errorf("Expected new dynamic axis index 0, got %d", a.Index(0))
	}
	if a.Index(2) != All {
		t.Errorf("Expected new row axis full range, got %d", a.Index(2))
	}

	// Row and column swap.
	if err := a.AssignRole(1, Row); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}
	if a.Roles() != [3]int{1, 2, 0} {
		t.Errorf("Expected roles [1 2 0], got %v", a.Roles())
	}
	// The displaced row axis is not unbound; it keeps the full range as the column.
	if a.RoleOf(2) != Column {
		t.Errorf("Expected axis 2 to become the column, got %v", a.RoleOf(2))
	}
	if s := a.CurrentSlices()[2]; s != ndarray.All(6) {
		t.Errorf("Expected axis 2 full range, got %v", s)
	}
}

// TestAssignRoleKeepsDynamicIndex verifies an unbound axis keeps its index when made dynamic
func TestAssignRoleKeepsDynamicIndex(t *testing.T) {
	a := newAssigner(t, 4, 5, 6, 7)
	if err := a.SetIndex(3, 5); err != nil {
		t.Fatalf("SetIndex failed: %v", err)
	}
	if err := a.AssignRole(3, Dynamic); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}
	if a.Index(3) != 5 {
		t.Errorf("Expected dynamic index 5, got %d", a.Index(3))
	}
	if a.RoleOf(2) != Unbound || a.Index(2) != 0 {
		t.Errorf("Expected axis 2 unbound at 0, got %v at %d", a.RoleOf(2), a.Index(2))
	}
}

// TestAssignRoleSameAxisNotifiesOnce verifies the no-op path and single notification
func TestAssignRoleSameAxisNotifiesOnce(t *testing.T) {
	a := newAssigner(t, 4, 5, 6)
	calls := 0
	a.Subscribe(func(Change) { calls++ })

	if err := a.AssignRole(0, Row); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}
	if a.Roles() != [3]int{0, 1, 2} {
		t.Errorf("Expected unchanged roles, got %v", a.Roles())
	}
	if calls != 1 {
		t.Errorf("Expected 1 notification, got %d", calls)
	}

	if err := a.AssignRole(2, Column); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 notifications after swap, got %d", calls)
	}
}

// TestAssignRoleLowRank verifies the special cases for rank 1 and 2
func TestAssignRoleLowRank(t *testing.T) {
	a1 := newAssigner(t, 8)
	if err := a1.AssignRole(0, Column); err != nil {
		t.Fatalf("AssignRole failed on rank 1: %v", err)
	}
	if a1.Roles() != [3]int{0, 0, 0} {
		t.Errorf("Expected rank 1 roles [0 0 0], got %v", a1.Roles())
	}

	a2 := newAssigner(t, 8, 9)
	if err := a2.AssignRole(1, Row); err != nil {
		t.Fatalf("AssignRole failed on rank 2: %v", err)
	}
	if a2.Roles() != [3]int{1, 0, 1} {
		t.Errorf("Expected rank 2 roles [1 0 1], got %v", a2.Roles())
	}
	if fullAxes(a2) != 2 {
		t.Errorf("Expected both axes full on rank 2, got %d", fullAxes(a2))
	}
}

// TestAssignRoleErrors verifies axis and role validation
func TestAssignRoleErrors(t *testing.T) {
	a := newAssigner(t, 4, 5, 6)
	if err := a.AssignRole(3, Row); !errors.Is(err, ErrAxisOutOfRange) {
		t.Errorf("Expected ErrAxisOutOfRange, got %v", err)
	}
	if err := a.AssignRole(0, Role(7)); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Expected ErrInvalidRole, got %v", err)
	}
}

// TestSetIndex verifies the sentinel, the range check and bound-axis rejection
func TestSetIndex(t *testing.T) {
	a := newAssigner(t, 4, 5, 6, 7)

	if err := a.SetIndex(3, -1); err != nil {
		t.Fatalf("SetIndex(-1) failed: %v", err)
	}
	if s := a.CurrentSlices()[3]; s != ndarray.All(7) {
		t.Errorf("Expected full-range slice for sentinel, got %v", s)
	}

	if err := a.SetIndex(3, 7); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for value == extent, got %v", err)
	}
	if a.Index(3) != All {
		t.Errorf("Expected state unchanged after error, got %d", a.Index(3))
	}
	if err := a.SetIndex(3, -2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for -2, got %v", err)
	}

	if err := a.SetIndex(0, 1); !errors.Is(err, ErrAxisBound) {
		t.Errorf("Expected ErrAxisBound for row axis, got %v", err)
	}

	if err := a.SetIndex(2, 5); err != nil {
		t.Fatalf("SetIndex on dynamic axis failed: %v", err)
	}
	if s := a.CurrentSlices()[2]; s != ndarray.Single(5) {
		t.Errorf("Expected single slice 5:6, got %v", s)
	}
}

// TestStepAndAdvance verifies clamped scrolling and wrapping animation steps
func TestStepAndAdvance(t *testing.T) {
	a := newAssigner(t, 4, 5, 3)

	if a.Step(-1) {
		t.Error("Expected no change stepping below 0")
	}
	if !a.Step(5) || a.Index(2) != 2 {
		t.Errorf("Expected clamp to 2, got %d", a.Index(2))
	}

	a.Advance()
	if a.Index(2) != 0 {
		t.Errorf("Expected wrap to 0, got %d", a.Index(2))
	}
	a.Advance()
	if a.Index(2) != 1 {
		t.Errorf("Expected 1 after advance, got %d", a.Index(2))
	}
}

// TestSlicesAt verifies the export slice tuple
func TestSlicesAt(t *testing.T) {
	a := newAssigner(t, 4, 5, 3)
	s, err := a.SlicesAt(2)
	if err != nil {
		t.Fatalf("SlicesAt failed: %v", err)
	}
	if s[2] != ndarray.Single(2) || s[0] != ndarray.All(4) {
		t.Errorf("Unexpected slices %v", s)
	}
	if a.Index(2) != 0 {
		t.Errorf("Expected SlicesAt to leave state unchanged, got %d", a.Index(2))
	}
	if _, err := a.SlicesAt(3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
}
