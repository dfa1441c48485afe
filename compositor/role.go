// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/role.go
// Summary: Role contract that gives a surface window semantics.

package compositor

import (
	"errors"
	"fmt"
)

// ErrRoleAssigned is returned when a surface already carries a role, or once
// carried a role of a different kind.
var ErrRoleAssigned = errors.New("compositor: surface already has a role")

// Role is implemented by protocol extensions that turn a surface into a
// window. Geometry questions about a surface are answered by its role.
type Role interface {
	// Name identifies the role kind; a surface keeps one kind for life.
	Name() string
	// Commit applies role pending state during wl_surface.commit.
	Commit()
	// SolidGeometry is the visible window area in surface coordinates.
	SolidGeometry() (Rect, bool)
	// SetActive toggles the activated presentation of the window.
	SetActive(active bool)
	// Title is shown by presenters.
	Title() string
	// Destroy detaches the role from its surface.
	Destroy()
}

func (s *Surface) assignRole(role Role) error {
	if s.role != nil {
		return fmt.Errorf("%w: %s", ErrRoleAssigned, s.role.Name())
	}
	if s.roleName != "" && s.roleName != role.Name() {
		return fmt.Errorf("%w: was %s, cannot become %s", ErrRoleAssigned, s.roleName, role.Name())
	}
	s.role = role
	s.roleName = role.Name()
	return nil
}

// clearRole is called when the role object goes away before the surface.
// The surface loses its window but keeps its role kind.
func (s *Surface) clearRole(role Role) {
	if s.role != role {
		return
	}
	s.role = nil
	s.comp.windowGone(s)
}
