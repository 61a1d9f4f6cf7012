package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btasdelen/arrview/pkg/display"
	"github.com/btasdelen/arrview/pkg/selection"
	"github.com/btasdelen/arrview/pkg/visualization"
)

// viewSettings holds the view flags applied to the session before export.
type viewSettings struct {
	Mode      string
	Roles     string
	Indices   string
	Transpose bool
	Rotate    int
}

// parseRoles reads "row,col,dyn".
func parseRoles(s string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("roles must be row,column,dynamic, got %q", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return out, fmt.Errorf("invalid axis %q: %w", p, err)
		}
		out[i] = n
	}
	return out, nil
}

// parseIndices reads "axis=value,..." pairs in order.
func parseIndices(s string) ([][2]int, error) {
	var out [][2]int
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("index must be axis=value, got %q", pair)
		}
		axis, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("invalid axis %q: %w", k, err)
		}
		value, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid index %q: %w", v, err)
		}
		out = append(out, [2]int{axis, value})
	}
	return out, nil
}

func (s viewSettings) apply(v *visualization.Viewer) error {
	if s.Roles != "" {
		axes, err := parseRoles(s.Roles)
		if err != nil {
			return err
		}
		for role, axis := range axes {
			if err := v.AssignRole(axis, selection.Role(role)); err != nil {
				return fmt.Errorf("failed to assign %v: %w", selection.Role(role), err)
			}
		}
	}
	if s.Indices != "" {
		pairs, err := parseIndices(s.Indices)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			if err := v.SetIndex(p[0], p[1]); err != nil {
				return err
			}
		}
	}
	if s.Mode != "" {
		mode, err := display.ParseViewMode(s.Mode)
		if err != nil {
			return err
		}
		if err := v.SetViewMode(mode); err != nil {
			return err
		}
	}
	if s.Transpose || s.Rotate != 0 {
		tr := v.Transform()
		tr.Transpose = s.Transpose
		tr.Rotation = s.Rotate
		if err := v.SetTransform(tr); err != nil {
			return err
		}
	}
	// Roles and indices change the frame; fit the contrast to the final one.
	if s.Roles != "" || s.Indices != "" {
		return v.AutoLevel()
	}
	return nil
}
