package authorization

import (
	"testing"

	"github.com/eddy-backend/eddy/internal/entities"
)

var (
	userEntity = &entities.EntitySchema{
		Name:              "user",
		IsPrincipal:       true,
		RequiresSuperuser: false,
		Fields:            []*entities.FieldSpec{{Name: "id", Kind: entities.FieldKindAutoKey}},
	}
	projectOwner  = &entities.FieldSpec{Name: "user", Kind: entities.FieldKindOwningReference, Target: "user"}
	projectEntity = &entities.EntitySchema{
		Name:       "project",
		OwnerField: projectOwner,
		Fields:     []*entities.FieldSpec{{Name: "id", Kind: entities.FieldKindAutoKey}, projectOwner},
	}
	blockTypeEntity = &entities.EntitySchema{
		Name:              "block_type",
		RequiresSuperuser: true,
		Fields:            []*entities.FieldSpec{{Name: "id", Kind: entities.FieldKindAutoKey}},
	}
	widgetTypeEntity = &entities.EntitySchema{
		Name:   "widget_type",
		Fields: []*entities.FieldSpec{{Name: "id", Kind: entities.FieldKindAutoKey}},
	}
)

func ownedProject(owner int64) *entities.Record {
	rec := &entities.Record{ID: 10, Entity: "project"}
	rec.SetOwner(owner)
	return rec
}

func TestAuthorize(t *testing.T) {
	anonymous := entities.Anonymous()
	u1 := &entities.Principal{ID: 1, Authenticated: true}
	u2 := &entities.Principal{ID: 2, Authenticated: true}
	admin := &entities.Principal{ID: 99, Authenticated: true, Superuser: true}
	// Superuser flag without authentication must still fail rule 1
	forgedAdmin := &entities.Principal{ID: 99, Superuser: true}

	tests := []struct {
		name        string
		principal   *entities.Principal
		requirement Requirement
		schema      *entities.EntitySchema
		rec         *entities.Record
		wantKind    entities.ErrorKind // KindUnknown = allowed
	}{
		{"anonymous read", anonymous, RequirementRead, projectEntity, ownedProject(1), entities.KindUnauthenticated},
		{"nil principal", nil, RequirementList, projectEntity, nil, entities.KindUnauthenticated},
		{"unauthenticated superuser", forgedAdmin, RequirementCreate, blockTypeEntity, nil, entities.KindUnauthenticated},
		{"anonymous on superuser-only entity", anonymous, RequirementCreate, blockTypeEntity, nil, entities.KindUnauthenticated},
		{"non-superuser on superuser-only entity", u1, RequirementCreate, blockTypeEntity, nil, entities.KindUnauthorized},
		{"non-superuser list on superuser-only entity", u1, RequirementList, blockTypeEntity, nil, entities.KindUnauthorized},
		{"superuser on superuser-only entity", admin, RequirementCreate, blockTypeEntity, nil, entities.KindUnknown},
		{"owner reads", u1, RequirementRead, projectEntity, ownedProject(1), entities.KindUnknown},
		{"other user reads", u2, RequirementRead, projectEntity, ownedProject(1), entities.KindForbidden},
		{"other user updates", u2, RequirementUpdate, projectEntity, ownedProject(1), entities.KindForbidden},
		{"other user deletes", u2, RequirementDelete, projectEntity, ownedProject(1), entities.KindForbidden},
		{"superuser reads any", admin, RequirementDelete, projectEntity, ownedProject(1), entities.KindUnknown},
		{"record without owner", u1, RequirementRead, projectEntity, &entities.Record{ID: 3, Entity: "project"}, entities.KindForbidden},
		{"principal reads self", u1, RequirementRead, userEntity, &entities.Record{ID: 1, Entity: "user"}, entities.KindUnknown},
		{"principal reads other", u1, RequirementUpdate, userEntity, &entities.Record{ID: 2, Entity: "user"}, entities.KindForbidden},
		{"catalog read", u1, RequirementRead, widgetTypeEntity, &entities.Record{ID: 5, Entity: "widget_type"}, entities.KindUnknown},
		{"entity-level create", u1, RequirementCreate, projectEntity, nil, entities.KindUnknown},
		{"non-superuser creates principal", u1, RequirementCreate, userEntity, nil, entities.KindForbidden},
		{"non-superuser creates principal record", u1, RequirementCreate, userEntity, &entities.Record{Entity: "user"}, entities.KindForbidden},
		{"superuser creates principal", admin, RequirementCreate, userEntity, &entities.Record{Entity: "user"}, entities.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Authorize(tt.principal, tt.requirement, tt.schema, tt.rec)
			if tt.wantKind == entities.KindUnknown {
				if !d.Allowed {
					t.Errorf("Authorize() denied with %v: %s", d.Kind, d.Reason)
				}
				if d.Err(tt.schema.Name) != nil {
					t.Errorf("Err() on allowed decision = %v", d.Err(tt.schema.Name))
				}
				return
			}
			if d.Allowed {
				t.Fatalf("Authorize() allowed, want %v", tt.wantKind)
			}
			if d.Kind != tt.wantKind {
				t.Errorf("Authorize() kind = %v, want %v", d.Kind, tt.wantKind)
			}
			if entities.KindOf(d.Err(tt.schema.Name)) != tt.wantKind {
				t.Errorf("Err() kind = %v, want %v", entities.KindOf(d.Err(tt.schema.Name)), tt.wantKind)
			}
		})
	}
}

func TestAuthorize_ListScope(t *testing.T) {
	u1 := &entities.Principal{ID: 1, Authenticated: true}
	admin := &entities.Principal{ID: 99, Authenticated: true, Superuser: true}

	d := Authorize(u1, RequirementList, projectEntity, nil)
	if !d.Allowed || d.Scope.All || d.Scope.OwnerID == nil || *d.Scope.OwnerID != 1 {
		t.Errorf("non-superuser project list scope = %+v", d.Scope)
	}

	d = Authorize(u1, RequirementList, userEntity, nil)
	if !d.Allowed || d.Scope.SelfID == nil || *d.Scope.SelfID != 1 {
		t.Errorf("non-superuser user list scope = %+v", d.Scope)
	}

	d = Authorize(admin, RequirementList, projectEntity, nil)
	if !d.Allowed || !d.Scope.All {
		t.Errorf("superuser list scope = %+v", d.Scope)
	}

	d = Authorize(u1, RequirementList, widgetTypeEntity, nil)
	if !d.Allowed || !d.Scope.All {
		t.Errorf("catalog list scope = %+v", d.Scope)
	}
}

func TestRequirement_String(t *testing.T) {
	if RequirementDelete.String() != "delete" {
		t.Errorf("String() = %s", RequirementDelete.String())
	}
	if Requirement(42).String() != "Requirement(42)" {
		t.Errorf("String() = %s", Requirement(42).String())
	}
}

func TestAuthorize_PrincipalCreateReason(t *testing.T) {
	u1 := &entities.Principal{ID: 1, Authenticated: true}
	d := Authorize(u1, RequirementCreate, userEntity, &entities.Record{Entity: "user"})
	if d.Allowed {
		t.Fatal("Authorize() allowed a non-superuser to create a principal")
	}
	if d.Reason != "only a superuser can create user records" {
		t.Errorf("Reason = %q", d.Reason)
	}
}
