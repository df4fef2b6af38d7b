// Package server assembles the HTTP surface: the chi router, the
// built-in record, file, realtime and admin handlers, rule enforcement,
// and the single error-to-status mapper.
package server

import (
	"context"
	"log"

	"github.com/bunbase/bunbase/internal/auth"
	"github.com/bunbase/bunbase/internal/config"
	"github.com/bunbase/bunbase/internal/files"
	"github.com/bunbase/bunbase/internal/hooks"
	"github.com/bunbase/bunbase/internal/realtime"
	"github.com/bunbase/bunbase/internal/records"
	"github.com/bunbase/bunbase/internal/repository"
	"github.com/bunbase/bunbase/internal/rules"
	"github.com/bunbase/bunbase/internal/schema"
	"github.com/uptrace/bun"
)

// App bundles the services every handler needs.
type App struct {
	Cfg      *config.Config
	DB       *bun.DB
	Registry *schema.Registry
	Records  *records.Service
	Hooks    *hooks.Registry
	Hub      *realtime.Hub
	Files    *files.Store
	Auth     *auth.Resolver
	Rules    *rules.Evaluator
	Admins   repository.AdminRepository
}

// AppOptions carries the dependencies of NewApp. HubOptions tunes the
// realtime timers; the zero value uses the defaults.
type AppOptions struct {
	Cfg        *config.Config
	DB         *bun.DB
	Registry   *schema.Registry
	Records    *records.Service
	Hooks      *hooks.Registry
	Files      *files.Store
	Auth       *auth.Resolver
	Rules      *rules.Evaluator
	Admins     repository.AdminRepository
	HubOptions realtime.Options
}

// NewApp builds the handler bundle, creates the realtime hub with the
// rule-checking access callback, and registers the built-in after-hooks
// that fan mutations out to subscribers and clean up record files.
func NewApp(opts AppOptions) *App {
	app := &App{
		Cfg:      opts.Cfg,
		DB:       opts.DB,
		Registry: opts.Registry,
		Records:  opts.Records,
		Hooks:    opts.Hooks,
		Files:    opts.Files,
		Auth:     opts.Auth,
		Rules:    opts.Rules,
		Admins:   opts.Admins,
	}
	app.Hub = realtime.NewHub(app.realtimeAccess, opts.HubOptions)
	app.registerBuiltinHooks()
	return app
}

// Close shuts the realtime hub down, disconnecting every client.
func (a *App) Close() {
	a.Hub.Close()
}

// registerBuiltinHooks wires the after-chains: every committed mutation
// is broadcast to realtime subscribers, and record deletion removes the
// record's file directory.
func (a *App) registerBuiltinHooks() {
	a.Hooks.On(hooks.EventAfterCreate, func(ctx *hooks.Context, next func() error) error {
		a.Hub.Broadcast("create", ctx.Collection, a.publicRecord(ctx.Record))
		return next()
	})
	a.Hooks.On(hooks.EventAfterUpdate, func(ctx *hooks.Context, next func() error) error {
		a.Hub.Broadcast("update", ctx.Collection, a.publicRecord(ctx.Record))
		return next()
	})
	a.Hooks.On(hooks.EventAfterDelete, func(ctx *hooks.Context, next func() error) error {
		a.Hub.Broadcast("delete", ctx.Collection, a.publicRecord(ctx.Record))
		if err := a.Files.DeleteRecord(ctx.Collection, ctx.ID); err != nil {
			log.Printf("WARNING: cleanup files for %s/%s: %v", ctx.Collection, ctx.ID, err)
		}
		return next()
	})
}

// publicRecord returns the record without the password hash. Records of
// base collections never carry the key and pass through unchanged.
func (a *App) publicRecord(record records.Record) records.Record {
	if record == nil {
		return nil
	}
	if _, ok := record[schema.AuthFieldPasswordHash]; !ok {
		return record
	}
	out := make(records.Record, len(record))
	for k, v := range record {
		if k == schema.AuthFieldPasswordHash {
			continue
		}
		out[k] = v
	}
	return out
}

// realtimeAccess is the hub's per-event permission check. Wildcard
// subscribers are governed by the list rule, specific-record subscribers
// by the view rule. A nil or empty rule admits admins only.
func (a *App) realtimeAccess(collection string, wildcard bool, record map[string]any, access *realtime.Access) bool {
	if access != nil && access.IsAdmin {
		return true
	}

	snap, err := a.Registry.GetCollection(context.Background(), collection)
	if err != nil {
		return false
	}

	op := "view"
	if wildcard {
		op = "list"
	}
	rule := snap.Collection.Rule(op)
	if rule == nil || *rule == "" {
		return false
	}

	var info *rules.AuthInfo
	if access != nil {
		info = access.Info
	}
	ok, err := a.Rules.Evaluate(*rule, rules.EvalContext{Record: record, Auth: info})
	if err != nil {
		log.Printf("WARNING: evaluate %s rule for %s: %v", op, collection, err)
		return false
	}
	return ok
}
