package server

import (
	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/auth"
	"github.com/bunbase/bunbase/internal/query"
	"github.com/bunbase/bunbase/internal/records"
	"github.com/bunbase/bunbase/internal/rules"
	"github.com/bunbase/bunbase/internal/schema"
)

// listClause lowers the collection's list rule to a WHERE fragment for
// the principal. Admins list unfiltered; a nil or empty rule locks the
// collection to admins.
func (a *App) listClause(snap *schema.Snapshot, principal *auth.Principal) (*query.Clause, error) {
	if principal.IsAdmin() {
		return nil, nil
	}
	rule := snap.Collection.ListRule
	if rule == nil || *rule == "" {
		return nil, apperrors.Forbidden("listing %q requires admin authorization", snap.Collection.Name)
	}
	clause, err := a.Rules.ToClause(*rule, principal.RuleInfo(), snap.HasColumn)
	if err != nil {
		return nil, err
	}
	return clause, nil
}

// checkRule evaluates the collection's rule for op against the record
// and the principal. For create the record is the submitted payload; for
// view, update and delete it is the stored row. Admins bypass; a nil or
// empty rule denies everyone else.
func (a *App) checkRule(snap *schema.Snapshot, op string, record records.Record, principal *auth.Principal) error {
	if principal.IsAdmin() {
		return nil
	}
	rule := snap.Collection.Rule(op)
	if rule == nil || *rule == "" {
		return apperrors.Forbidden("operation %q on %q requires admin authorization", op, snap.Collection.Name)
	}
	ok, err := a.Rules.Evaluate(*rule, rules.EvalContext{Record: record, Auth: principal.RuleInfo()})
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Forbidden("operation %q on %q is not permitted", op, snap.Collection.Name)
	}
	return nil
}
