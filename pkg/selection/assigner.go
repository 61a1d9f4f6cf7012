// Package selection tracks which axes of an N-dimensional array are shown as
// image rows and columns, which one is scrubbed, and the index fixed on every
// other axis.
package selection

import (
	"errors"
	"fmt"
	"slices"

	"github.com/btasdelen/arrview/pkg/ndarray"
)

// Role is the display meaning given to an axis.
type Role int

const (
	Unbound Role = -1
	Row     Role = 0
	Column  Role = 1
	Dynamic Role = 2
)

// All is the index sentinel for a full-range selection. It lies outside every
// valid 0-based index.
const All = -1

var (
	// ErrOutOfRange is returned when an index is outside [-1, extent-1].
	ErrOutOfRange = errors.New("index out of range")

	// ErrAxisOutOfRange is returned for an axis outside [0, rank).
	ErrAxisOutOfRange = errors.New("axis out of range")

	// ErrInvalidRole is returned for a role other than Row, Column or Dynamic.
	ErrInvalidRole = errors.New("invalid role")

	// ErrAxisBound is returned when setting an index on a row or column axis.
	ErrAxisBound = errors.New("axis is bound to the image plane")
)

func (r Role) String() string {
	switch r {
	case Row:
		return "row"
	case Column:
		return "column"
	case Dynamic:
		return "dynamic"
	case Unbound:
		return "unbound"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole converts a role name into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "row", "r":
		return Row, nil
	case "column", "col", "c":
		return Column, nil
	case "dynamic", "dyn", "d":
		return Dynamic, nil
	}
	return Unbound, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Change is delivered to subscribers once per mutating call.
type Change struct {
	Roles   [3]int
	Indices []int
}

// Assigner holds the role assignment and per-axis indices for one shape.
// It is not safe for concurrent use; the owning viewer serializes access.
type Assigner struct {
	shape     []int
	roles     [3]int
	index     []int
	listeners []func(Change)
}

// NewAssigner creates an assigner with the default roles: row=0, column=1,
// dynamic=2. Rank 1 uses {0,0,0} and rank 2 uses {0,1,0}.
func NewAssigner(shape []int) (*Assigner, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: rank must be at least 1", ndarray.ErrInvalidShape)
	}
	a := &Assigner{
		shape: slices.Clone(shape),
		index: make([]int, len(shape)),
	}
	switch len(shape) {
	case 1:
		a.roles = [3]int{0, 0, 0}
	case 2:
		a.roles = [3]int{0, 1, 0}
	default:
		a.roles = [3]int{0, 1, 2}
	}
	a.normalize()
	return a, nil
}

// Subscribe registers fn to be called after every state change.
func (a *Assigner) Subscribe(fn func(Change)) {
	a.listeners = append(a.listeners, fn)
}

func (a *Assigner) notify() {
	c := Change{Roles: a.roles, Indices: slices.Clone(a.index)}
	for _, fn := range a.listeners {
		fn(c)
	}
}

// Shape returns a copy of the axis extents.
func (a *Assigner) Shape() []int { return slices.Clone(a.shape) }

// Rank returns the number of axes.
func (a *Assigner) Rank() int { return len(a.shape) }

// Roles returns the axis bound to each role, indexed by Role.
func (a *Assigner) Roles() [3]int { return a.roles }

// Axis returns the axis bound to role.
func (a *Assigner) Axis(role Role) int { return a.roles[role] }

// RoleOf returns the role held by axis, or Unbound. When roles share an axis
// (rank below 3) the lowest role wins.
func (a *Assigner) RoleOf(axis int) Role {
	for r, ax := range a.roles {
		if ax == axis {
			return Role(r)
		}
	}
	return Unbound
}

// Index returns the selected index of axis; All for full-range axes.
func (a *Assigner) Index(axis int) int { return a.index[axis] }

// Indices returns a copy of every axis index.
func (a *Assigner) Indices() []int { return slices.Clone(a.index) }

// DynamicExtent returns the number of frames along the dynamic axis. Shapes
// below rank 3 have no separate dynamic axis and report 1.
func (a *Assigner) DynamicExtent() int {
	if len(a.shape) < 3 {
		return 1
	}
	return a.shape[a.roles[Dynamic]]
}

// AssignRole binds role to axis. A previous holder of the role either becomes
// unbound with index 0, or, when axis already held another role, takes over
// that role. In the second case the previous holder stays bound, so it is not
// reduced to a single index: a displaced row or column axis keeps its full
// range. One change notification is sent.
func (a *Assigner) AssignRole(axis int, role Role) error {
	if axis < 0 || axis >= len(a.shape) {
		return fmt.Errorf("%w: axis %d for rank %d", ErrAxisOutOfRange, axis, len(a.shape))
	}
	if role != Row && role != Column && role != Dynamic {
		return fmt.Errorf("%w: %d", ErrInvalidRole, int(role))
	}

	switch len(a.shape) {
	case 1:
		// Every role lives on axis 0.
	case 2:
		a.assignPlanar(axis, role)
	default:
		a.assign(axis, role)
	}

	a.normalize()
	a.notify()
	return nil
}

func (a *Assigner) assignPlanar(axis int, role Role) {
	if role == Dynamic {
		a.roles[Dynamic] = axis
		return
	}
	if a.roles[role] == axis {
		return
	}
	a.roles[Row], a.roles[Column] = a.roles[Column], a.roles[Row]
	a.roles[Dynamic] = a.roles[Row]
}

func (a *Assigner) assign(axis int, role Role) {
	holder := a.roles[role]
	if holder == axis {
		return
	}
	prev := a.RoleOf(axis)
	a.roles[role] = axis
	if prev == Unbound {
		a.index[holder] = 0
		return
	}
	a.roles[prev] = holder
}

// normalize enforces the per-role index rules after any role change.
func (a *Assigner) normalize() {
	if len(a.shape) < 3 {
		for i := range a.index {
			a.index[i] = All
		}
		return
	}
	a.index[a.roles[Row]] = All
	a.index[a.roles[Column]] = All
	dyn := a.roles[Dynamic]
	if a.index[dyn] == All {
		a.index[dyn] = 0
	}
	if a.index[dyn] >= a.shape[dyn] {
		a.index[dyn] = a.shape[dyn] - 1
	}
}

// SetIndex fixes the index of an axis that is not part of the image plane.
// value must lie in [-1, extent-1], where -1 (All) selects the full range.
// On error the state is unchanged.
func (a *Assigner) SetIndex(axis, value int) error {
	if axis < 0 || axis >= len(a.shape) {
		return fmt.Errorf("%w: axis %d for rank %d", ErrAxisOutOfRange, axis, len(a.shape))
	}
	if value < All || value >= a.shape[axis] {
		return fmt.Errorf("%w: %d not in [-1, %d] for axis %d", ErrOutOfRange, value, a.shape[axis]-1, axis)
	}
	if len(a.shape) < 3 || axis == a.roles[Row] || axis == a.roles[Column] {
		return fmt.Errorf("%w: axis %d", ErrAxisBound, axis)
	}
	a.index[axis] = value
	a.notify()
	return nil
}

// Step moves the dynamic index by delta, clamped to the axis. It reports
// whether the index changed; no notification is sent when it did not.
func (a *Assigner) Step(delta int) bool {
	if len(a.shape) < 3 {
		return false
	}
	dyn := a.roles[Dynamic]
	cur := a.index[dyn]
	if cur == All {
		return false
	}
	next := min(max(cur+delta, 0), a.shape[dyn]-1)
	if next == cur {
		return false
	}
	a.index[dyn] = next
	a.notify()
	return true
}

// Advance moves the dynamic index forward by one, wrapping at the end.
func (a *Assigner) Advance() {
	if len(a.shape) < 3 {
		return
	}
	dyn := a.roles[Dynamic]
	cur := max(a.index[dyn], 0)
	a.index[dyn] = (cur + 1) % a.shape[dyn]
	a.notify()
}

// CurrentSlices returns one slice per axis: the full range for row, column and
// All-selected axes, a single element otherwise.
func (a *Assigner) CurrentSlices() []ndarray.Slice {
	out := make([]ndarray.Slice, len(a.shape))
	for axis, extent := range a.shape {
		if a.index[axis] == All {
			out[axis] = ndarray.All(extent)
		} else {
			out[axis] = ndarray.Single(a.index[axis])
		}
	}
	return out
}

// SlicesAt returns CurrentSlices with the dynamic axis fixed at i.
func (a *Assigner) SlicesAt(i int) ([]ndarray.Slice, error) {
	out := a.CurrentSlices()
	if len(a.shape) < 3 {
		if i != 0 {
			return nil, fmt.Errorf("%w: %d for a shape without a dynamic axis", ErrOutOfRange, i)
		}
		return out, nil
	}
	dyn := a.roles[Dynamic]
	if i < 0 || i >= a.shape[dyn] {
		return nil, fmt.Errorf("%w: %d not in [0, %d] for dynamic axis %d", ErrOutOfRange, i, a.shape[dyn]-1, dyn)
	}
	out[dyn] = ndarray.Single(i)
	return out, nil
}
