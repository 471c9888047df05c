package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
	"github.com/eddy-backend/eddy/internal/services/authorization"
	"github.com/eddy-backend/eddy/internal/services/coercion"
)

// OperationNames are the API names of an entity's operations
type OperationNames struct {
	Get    string
	GetAll string
	Create string
	Update string
	Delete string
}

// OperationSet holds the five operations of one entity.
// The caller is read from the context with entities.PrincipalFromContext.
type OperationSet struct {
	Schema *entities.EntitySchema
	synth  *Synthesizer
}

// Names returns the operation names, e.g. getBlockType, getAllBlockType, createBlockType
func (o *OperationSet) Names() OperationNames {
	t := o.Schema.TypeName()
	return OperationNames{
		Get:    "get" + t,
		GetAll: "getAll" + t,
		Create: "create" + t,
		Update: "update" + t,
		Delete: "delete" + t,
	}
}

// ReadOne returns the record with the given id
func (o *OperationSet) ReadOne(ctx context.Context, id int64) (*entities.Record, error) {
	rec, err := o.readOne(ctx, id)
	return rec, entities.WithOp(err, o.Names().Get)
}

func (o *OperationSet) readOne(ctx context.Context, id int64) (*entities.Record, error) {
	principal := entities.PrincipalFromContext(ctx)
	if err := o.authorize(principal, authorization.RequirementRead, nil); err != nil {
		return nil, err
	}

	rec, err := o.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	orphan, err := o.isOrphan(ctx, rec)
	if err != nil {
		return nil, err
	}
	if orphan {
		return nil, o.notFound(id)
	}

	if err := o.authorize(principal, authorization.RequirementRead, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReadAll returns every record the caller may see: all records for superusers,
// the caller's own records otherwise
func (o *OperationSet) ReadAll(ctx context.Context) ([]*entities.Record, error) {
	recs, err := o.readAll(ctx)
	return recs, entities.WithOp(err, o.Names().GetAll)
}

func (o *OperationSet) readAll(ctx context.Context) ([]*entities.Record, error) {
	principal := entities.PrincipalFromContext(ctx)
	decision := authorization.Authorize(principal, authorization.RequirementList, o.Schema, nil)
	if err := decision.Err(o.Schema.Name); err != nil {
		return nil, err
	}

	var filter *repositories.RecordFilter
	switch {
	case decision.Scope.OwnerID != nil:
		filter = &repositories.RecordFilter{OwnerID: decision.Scope.OwnerID}
	case decision.Scope.SelfID != nil:
		filter = &repositories.RecordFilter{IDs: []int64{*decision.Scope.SelfID}}
	}

	recs, err := o.synth.store.List(ctx, o.Schema.Name, filter)
	if err != nil {
		return nil, entities.Unavailable(o.Schema.Name, fmt.Errorf("failed to list records: %w", err))
	}
	for _, rec := range recs {
		if err := coercion.NormalizeRecord(o.Schema, rec); err != nil {
			return nil, entities.Unavailable(o.Schema.Name, err)
		}
	}
	return o.dropOrphans(ctx, recs)
}

// Create stores a new record built from args.
// When a post-commit hook fails the committed record is returned together with the error.
func (o *OperationSet) Create(ctx context.Context, args map[string]interface{}) (*entities.Record, error) {
	rec, err := o.create(ctx, args)
	return rec, entities.WithOp(err, o.Names().Create)
}

func (o *OperationSet) create(ctx context.Context, args map[string]interface{}) (*entities.Record, error) {
	principal := entities.PrincipalFromContext(ctx)
	if err := o.authorize(principal, authorization.RequirementCreate, nil); err != nil {
		return nil, err
	}

	rec := entities.NewRecord(o.Schema.Name)
	if err := o.assign(ctx, principal, rec, o.Schema.CreateArguments(), args); err != nil {
		return nil, err
	}
	if o.Schema.OwnerField != nil {
		rec.SetOwner(principal.ID)
	}
	if err := o.authorize(principal, authorization.RequirementCreate, rec); err != nil {
		return nil, err
	}
	if err := o.checkWrite(ctx, principal, rec); err != nil {
		return nil, err
	}

	saved, err := o.synth.store.Save(ctx, rec)
	if err != nil {
		return nil, entities.Unavailable(o.Schema.Name, fmt.Errorf("failed to save record: %w", err))
	}
	for _, hook := range o.synth.hooks[o.Schema.Name] {
		if err := hook.AfterCreate(ctx, o.Schema, saved.Clone()); err != nil {
			return saved, entities.Unavailable(o.Schema.Name, err)
		}
	}
	return saved, nil
}

// Update applies the supplied args to an existing record. Fields not supplied are unchanged.
// The owner and the identifier can never be changed; references only when declared mutable.
func (o *OperationSet) Update(ctx context.Context, id int64, args map[string]interface{}) (*entities.Record, error) {
	rec, err := o.update(ctx, id, args)
	return rec, entities.WithOp(err, o.Names().Update)
}

func (o *OperationSet) update(ctx context.Context, id int64, args map[string]interface{}) (*entities.Record, error) {
	principal := entities.PrincipalFromContext(ctx)
	if err := o.authorize(principal, authorization.RequirementUpdate, nil); err != nil {
		return nil, err
	}

	before, err := o.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	orphan, err := o.isOrphan(ctx, before)
	if err != nil {
		return nil, err
	}
	if orphan {
		return nil, o.notFound(id)
	}
	if err := o.authorize(principal, authorization.RequirementUpdate, before); err != nil {
		return nil, err
	}

	rec := before.Clone()
	if err := o.assign(ctx, principal, rec, o.Schema.UpdateArguments(), args); err != nil {
		return nil, err
	}
	if err := o.checkWrite(ctx, principal, rec); err != nil {
		return nil, err
	}

	saved, err := o.synth.store.Save(ctx, rec)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return nil, o.notFound(id)
	}
	if err != nil {
		return nil, entities.Unavailable(o.Schema.Name, fmt.Errorf("failed to save record: %w", err))
	}
	for _, hook := range o.synth.hooks[o.Schema.Name] {
		if err := hook.AfterUpdate(ctx, o.Schema, before, saved.Clone()); err != nil {
			return saved, entities.Unavailable(o.Schema.Name, err)
		}
	}
	return saved, nil
}

// Delete removes a record and, first, every record that depends on it through an owning
// reference. It returns the deleted id.
func (o *OperationSet) Delete(ctx context.Context, id int64) (int64, error) {
	deleted, err := o.delete(ctx, id)
	return deleted, entities.WithOp(err, o.Names().Delete)
}

func (o *OperationSet) delete(ctx context.Context, id int64) (int64, error) {
	principal := entities.PrincipalFromContext(ctx)
	if err := o.authorize(principal, authorization.RequirementDelete, nil); err != nil {
		return 0, err
	}

	rec, err := o.fetch(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := o.authorize(principal, authorization.RequirementDelete, rec); err != nil {
		return 0, err
	}

	visited := map[string]bool{rec.String(): true}
	var hookErr error
	if err := o.synth.cascade(ctx, o.Schema, rec, visited, &hookErr); err != nil {
		return 0, err
	}

	if err := o.synth.store.Delete(ctx, o.Schema.Name, id); err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return 0, o.notFound(id)
		}
		return 0, entities.Unavailable(o.Schema.Name, fmt.Errorf("failed to delete record: %w", err))
	}
	if err := o.synth.afterDelete(ctx, o.Schema, rec); err != nil && hookErr == nil {
		hookErr = err
	}
	return id, hookErr
}

// cascade deletes, depth first, every record holding an owning reference to rec.
// The records are deleted before rec so no dependent ever references a live parent
// that is about to disappear. Hook failures do not stop the cascade: the first one
// is kept in hookErr. Store failures abort it.
func (s *Synthesizer) cascade(ctx context.Context, schema *entities.EntitySchema, rec *entities.Record, visited map[string]bool, hookErr *error) error {
	dependents, err := s.registry.Dependents(schema.Name)
	if err != nil {
		return err
	}

	for _, dep := range dependents {
		filter := &repositories.RecordFilter{Equals: map[string]interface{}{dep.Field.Name: rec.ID}}
		if dep.Entity.IsOwnerField(dep.Field) {
			filter = &repositories.RecordFilter{OwnerID: &rec.ID}
		}

		children, err := s.store.List(ctx, dep.Entity.Name, filter)
		if err != nil {
			return entities.Unavailable(dep.Entity.Name, fmt.Errorf("failed to list dependents: %w", err))
		}

		for _, child := range children {
			if visited[child.String()] {
				continue
			}
			visited[child.String()] = true

			if err := coercion.NormalizeRecord(dep.Entity, child); err != nil {
				return entities.Unavailable(dep.Entity.Name, err)
			}
			if err := s.cascade(ctx, dep.Entity, child, visited, hookErr); err != nil {
				return err
			}
			err := s.store.Delete(ctx, dep.Entity.Name, child.ID)
			if errors.Is(err, repositories.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return entities.Unavailable(dep.Entity.Name, fmt.Errorf("failed to delete dependent %s: %w", child, err))
			}
			if err := s.afterDelete(ctx, dep.Entity, child); err != nil && *hookErr == nil {
				*hookErr = err
			}
		}
	}
	return nil
}

func (s *Synthesizer) afterDelete(ctx context.Context, schema *entities.EntitySchema, rec *entities.Record) error {
	for _, hook := range s.hooks[schema.Name] {
		if err := hook.AfterDelete(ctx, schema, rec.Clone()); err != nil {
			return entities.Unavailable(schema.Name, err)
		}
	}
	return nil
}

// authorize runs the policy and returns its failure, if any
func (o *OperationSet) authorize(principal *entities.Principal, requirement authorization.Requirement, rec *entities.Record) error {
	return authorization.Authorize(principal, requirement, o.Schema, rec).Err(o.Schema.Name)
}

func (o *OperationSet) notFound(id int64) error {
	return entities.NewError(entities.KindNotFound, o.Schema.Name, "%s %d not found", o.Schema.Name, id)
}

// fetch loads and normalizes a record of this entity
func (o *OperationSet) fetch(ctx context.Context, id int64) (*entities.Record, error) {
	rec, err := o.synth.store.GetByID(ctx, o.Schema.Name, id)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return nil, o.notFound(id)
	}
	if err != nil {
		return nil, entities.Unavailable(o.Schema.Name, fmt.Errorf("failed to get record: %w", err))
	}
	if err := coercion.NormalizeRecord(o.Schema, rec); err != nil {
		return nil, entities.Unavailable(o.Schema.Name, err)
	}
	return rec, nil
}

// isOrphan reports whether rec has lost its owner, which happens when a cascade was interrupted
func (o *OperationSet) isOrphan(ctx context.Context, rec *entities.Record) (bool, error) {
	if o.Schema.OwnerField == nil {
		return false, nil
	}
	if rec.OwnerID == nil {
		return true, nil
	}
	_, err := o.synth.store.GetByID(ctx, o.Schema.OwnerField.Target, *rec.OwnerID)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, entities.Unavailable(o.Schema.Name, fmt.Errorf("failed to resolve owner: %w", err))
	}
	return false, nil
}

// dropOrphans removes records whose owner no longer resolves, with one lookup for all owners
func (o *OperationSet) dropOrphans(ctx context.Context, recs []*entities.Record) ([]*entities.Record, error) {
	if o.Schema.OwnerField == nil || len(recs) == 0 {
		return recs, nil
	}

	seen := make(map[int64]bool)
	var ownerIDs []int64
	for _, rec := range recs {
		if rec.OwnerID != nil && !seen[*rec.OwnerID] {
			seen[*rec.OwnerID] = true
			ownerIDs = append(ownerIDs, *rec.OwnerID)
		}
	}
	sort.Slice(ownerIDs, func(i, j int) bool { return ownerIDs[i] < ownerIDs[j] })

	live := make(map[int64]bool, len(ownerIDs))
	if len(ownerIDs) > 0 {
		owners, err := o.synth.store.List(ctx, o.Schema.OwnerField.Target, &repositories.RecordFilter{IDs: ownerIDs})
		if err != nil {
			return nil, entities.Unavailable(o.Schema.Name, fmt.Errorf("failed to resolve owners: %w", err))
		}
		for _, owner := range owners {
			live[owner.ID] = true
		}
	}

	result := make([]*entities.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.OwnerID != nil && live[*rec.OwnerID] {
			result = append(result, rec)
		}
	}
	return result, nil
}
