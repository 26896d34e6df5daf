package service

import (
	"sort"

	"github.com/trustcart/backoffice-auth/internal/model"
	"github.com/trustcart/backoffice-auth/internal/repository"
)

// EffectivePermission decides whether a user holds a permission.  An
// override row, granted or revoked, always wins; without one the role path
// decides.  Equivalently: (viaRole && !revoked) || granted.
func EffectivePermission(viaRole bool, override *bool) bool {
	if override != nil {
		return *override
	}
	return viaRole
}

// EffectivePermissions applies EffectivePermission to every permission a
// user can see through roles or overrides.  The result is distinct and
// ordered by (module, action).
func EffectivePermissions(roleDerived []model.Permission, overrides []repository.PermissionOverride) []model.Permission {
	candidates := make(map[uint64]model.Permission, len(roleDerived)+len(overrides))
	viaRole := make(map[uint64]bool, len(roleDerived))
	for _, p := range roleDerived {
		candidates[p.ID] = p
		viaRole[p.ID] = true
	}
	override := make(map[uint64]bool, len(overrides))
	for _, o := range overrides {
		candidates[o.Permission.ID] = o.Permission
		override[o.Permission.ID] = o.Granted
	}

	out := make([]model.Permission, 0, len(candidates))
	for id, p := range candidates {
		var ov *bool
		if g, ok := override[id]; ok {
			ov = &g
		}
		if EffectivePermission(viaRole[id], ov) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		if out[i].Action != out[j].Action {
			return out[i].Action < out[j].Action
		}
		return out[i].ID < out[j].ID
	})
	return out
}
