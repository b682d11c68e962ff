// Package authz answers role membership from a static grant list
package authz

import (
	"context"
	"strings"

	"github.com/garyjia/procurement-tracker/internal/application/port"
)

// Static grants roles to actors by name. Actor names compare case-insensitively.
// The system actor holds every role.
type Static struct {
	grants      map[string]map[string]bool
	systemActor string
}

// NewStatic builds an authorizer from actor -> roles
func NewStatic(grants map[string][]string, systemActor string) *Static {
	s := &Static{
		grants:      make(map[string]map[string]bool, len(grants)),
		systemActor: normalize(systemActor),
	}
	for actor, roles := range grants {
		key := normalize(actor)
		if s.grants[key] == nil {
			s.grants[key] = make(map[string]bool, len(roles))
		}
		for _, role := range roles {
			s.grants[key][strings.TrimSpace(role)] = true
		}
	}
	return s
}

// HasRole implements port.AuthZ
func (s *Static) HasRole(ctx context.Context, actor, role string) bool {
	key := normalize(actor)
	if key == "" {
		return false
	}
	if s.systemActor != "" && key == s.systemActor {
		return true
	}
	return s.grants[key][role]
}

func normalize(actor string) string {
	return strings.ToLower(strings.TrimSpace(actor))
}

// Verify interface compliance
var _ port.AuthZ = (*Static)(nil)
