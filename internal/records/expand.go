package records

import (
	"context"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/schema"
)

// expandKey is the submap attached to records carrying expanded
// relations.
const expandKey = "expand"

// expandRelations inlines the referenced record for each relation field
// named in expand, one level deep. Missing referents are silently
// omitted.
func (s *Service) expandRelations(ctx context.Context, snap *schema.Snapshot, items []Record, expand []string) error {
	for _, name := range expand {
		f := snap.Field(name)
		if f == nil || f.Type != models.FieldTypeRelation {
			return apperrors.Validation("cannot expand non-relation field %q", name)
		}
		opts, err := schema.DecodeRelationOptions(f.Options)
		if err != nil {
			return apperrors.Validation("field %q: invalid relation options", name)
		}

		// Collect distinct referenced ids, then fetch each once.
		fetched := map[string]Record{}
		for _, item := range items {
			id, ok := item[name].(string)
			if !ok || id == "" {
				continue
			}
			if _, done := fetched[id]; done {
				continue
			}
			related, err := s.Get(ctx, opts.Target, id)
			if err != nil {
				if apperrors.IsKind(err, apperrors.KindNotFound) {
					fetched[id] = nil
					continue
				}
				return err
			}
			fetched[id] = related
		}

		for _, item := range items {
			id, ok := item[name].(string)
			if !ok || id == "" {
				continue
			}
			related := fetched[id]
			if related == nil {
				continue
			}
			sub, ok := item[expandKey].(map[string]any)
			if !ok {
				sub = map[string]any{}
				item[expandKey] = sub
			}
			sub[name] = related
		}
	}
	return nil
}
