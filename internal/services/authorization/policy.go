package authorization

import (
	"fmt"

	"github.com/eddy-backend/eddy/internal/entities"
)

// Requirement is what an operation asks the policy for
type Requirement int

const (
	RequirementRead Requirement = iota
	RequirementList
	RequirementCreate
	RequirementUpdate
	RequirementDelete
)

var requirementNames = map[Requirement]string{
	RequirementRead:   "read",
	RequirementList:   "list",
	RequirementCreate: "create",
	RequirementUpdate: "update",
	RequirementDelete: "delete",
}

// String returns the name of the requirement
func (r Requirement) String() string {
	if name, ok := requirementNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Requirement(%d)", int(r))
}

// Scope narrows a list to the records a caller may see
type Scope struct {
	All     bool   // No narrowing (superusers and global catalogs)
	OwnerID *int64 // Only records owned by this principal
	SelfID  *int64 // Only the principal record with this identifier
}

// Decision is the outcome of Authorize
type Decision struct {
	Allowed bool
	Kind    entities.ErrorKind // Failure kind when denied
	Reason  string
	Scope   Scope // Narrowing for list requirements when allowed
}

// Err returns the failure for a denied decision, nil when allowed
func (d Decision) Err(entity string) error {
	if d.Allowed {
		return nil
	}
	return entities.NewError(d.Kind, entity, "%s", d.Reason)
}

func allow() Decision {
	return Decision{Allowed: true, Scope: Scope{All: true}}
}

func deny(kind entities.ErrorKind, format string, args ...interface{}) Decision {
	return Decision{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Authorize decides whether principal may perform requirement on schema.
// Rules apply in order:
//  1. unauthenticated callers are denied (Unauthenticated)
//  2. superuser-only entities deny non-superusers (Unauthorized)
//  3. instance requirements deny non-superusers that do not own rec (Forbidden)
//  4. list requirements narrow non-superusers to their own records
//
// Creating a principal record is an instance requirement no non-superuser satisfies.
// Superusers skip 3 and 4 only. For RequirementCreate, rec is the record about to be
// written with its owner already assigned, or nil to check the entity-level rules alone.
func Authorize(principal *entities.Principal, requirement Requirement, schema *entities.EntitySchema, rec *entities.Record) Decision {
	if principal == nil || !principal.Authenticated {
		return deny(entities.KindUnauthenticated, "user not authenticated")
	}

	if schema.RequiresSuperuser && !principal.Superuser {
		return deny(entities.KindUnauthorized, "%s requires a superuser", schema.Name)
	}

	if principal.Superuser || !schema.Owned() {
		return allow()
	}

	if requirement == RequirementList {
		id := principal.ID
		if schema.IsPrincipal {
			return Decision{Allowed: true, Scope: Scope{SelfID: &id}}
		}
		return Decision{Allowed: true, Scope: Scope{OwnerID: &id}}
	}

	if requirement == RequirementCreate && schema.IsPrincipal {
		return deny(entities.KindForbidden, "only a superuser can create %s records", schema.Name)
	}
	if rec == nil {
		return allow()
	}
	if !OwnedBy(schema, rec, principal.ID) {
		return deny(entities.KindForbidden, "%s belongs to another user", rec)
	}
	return allow()
}

// OwnedBy reports whether rec belongs to the principal with the given id.
// Records of the principal entity belong to themselves. Records of entities without
// an owner field belong to nobody and pass.
func OwnedBy(schema *entities.EntitySchema, rec *entities.Record, principalID int64) bool {
	switch {
	case schema.IsPrincipal:
		return rec.ID == principalID
	case schema.OwnerField != nil:
		return rec.OwnedBy(principalID)
	default:
		return true
	}
}
