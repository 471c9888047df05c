package synthesizer

import (
	"context"
	"fmt"
	"sort"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
	"github.com/eddy-backend/eddy/internal/services/authorization"
	"github.com/eddy-backend/eddy/internal/services/coercion"
)

// assign resolves args against the allowed fields and writes them onto rec.
// Unknown arguments and arguments outside allowed are InvalidArgument. Arguments are
// processed in name order so the reported failure does not depend on map iteration.
func (o *OperationSet) assign(ctx context.Context, principal *entities.Principal, rec *entities.Record, allowed []*entities.FieldSpec, args map[string]interface{}) error {
	permitted := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		permitted[f.Name] = true
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := o.Schema.FieldByArgument(name)
		switch {
		case field == nil:
			return entities.NewError(entities.KindInvalidArgument, o.Schema.Name, "unknown argument %s", name)
		case o.Schema.IsOwnerField(field):
			return entities.NewError(entities.KindInvalidArgument, o.Schema.Name, "%s is assigned from the caller", name)
		case !permitted[field.Name]:
			return entities.NewError(entities.KindInvalidArgument, o.Schema.Name, "%s cannot be changed", name)
		}

		resolved, err := coercion.ResolveArgument(ctx, field, args[name], o.synth.store)
		if err != nil {
			return err
		}
		if err := o.checkParents(principal, field, resolved.References); err != nil {
			return err
		}

		value := resolved.Value
		if field.Kind == entities.FieldKindSecret {
			digest, err := o.synth.hasher.Hash(value.(string))
			if err != nil {
				return entities.Unavailable(o.Schema.Name, fmt.Errorf("failed to hash %s: %w", name, err))
			}
			value = digest
		}
		rec.Set(field.Name, value)
	}
	return nil
}

// checkParents rejects references to records the caller does not own
func (o *OperationSet) checkParents(principal *entities.Principal, field *entities.FieldSpec, refs []*entities.Record) error {
	if principal.Superuser || len(refs) == 0 {
		return nil
	}
	target, err := o.synth.schemaOf(field.Target)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if !authorization.OwnedBy(target, ref, principal.ID) {
			return entities.NewError(entities.KindForbidden, o.Schema.Name, "%s %s belongs to another user", field.ArgumentName(), ref)
		}
	}
	return nil
}

// checkWrite runs the validation rules and the uniqueness constraints against rec
func (o *OperationSet) checkWrite(ctx context.Context, principal *entities.Principal, rec *entities.Record) error {
	if o.synth.rules != nil {
		if err := o.synth.rules.Check(o.Schema, rec, principal); err != nil {
			return err
		}
	}

	if owner := o.Schema.OwnerField; owner != nil && owner.Unique && rec.OwnerID != nil {
		taken, err := o.taken(ctx, rec, &repositories.RecordFilter{OwnerID: rec.OwnerID})
		if err != nil {
			return err
		}
		if taken {
			return entities.NewError(entities.KindConflict, o.Schema.Name, "%s already has a %s", owner.Target, o.Schema.Name)
		}
	}

	for _, field := range o.Schema.Fields {
		if !field.Unique || o.Schema.IsOwnerField(field) {
			continue
		}
		value, ok := rec.Get(field.Name)
		if !ok || value == nil {
			continue
		}
		taken, err := o.taken(ctx, rec, &repositories.RecordFilter{Equals: map[string]interface{}{field.Name: value}})
		if err != nil {
			return err
		}
		if taken {
			return entities.NewError(entities.KindConflict, o.Schema.Name, "a %s with this %s already exists", o.Schema.Name, field.ArgumentName())
		}
	}
	return nil
}

// taken reports whether a record other than rec matches filter
func (o *OperationSet) taken(ctx context.Context, rec *entities.Record, filter *repositories.RecordFilter) (bool, error) {
	matches, err := o.synth.store.List(ctx, o.Schema.Name, filter)
	if err != nil {
		return false, entities.Unavailable(o.Schema.Name, fmt.Errorf("failed to check uniqueness: %w", err))
	}
	for _, m := range matches {
		if m.ID != rec.ID {
			return true, nil
		}
	}
	return false, nil
}
