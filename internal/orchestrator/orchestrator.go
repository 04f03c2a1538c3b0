/*
 *  This file is part of the EGIL SCIM client.
 *
 *  Copyright (C) 2017-2024 Föreningen Sambruk
 *
 *  This program is free software: you can redistribute it and/or modify
 *  it under the terms of the GNU Affero General Public License as
 *  published by the Free Software Foundation, either version 3 of the
 *  License, or (at your option) any later version.

 *  This program is distributed in the hope that it will be useful,
 *  but WITHOUT ANY WARRANTY; without even the implied warranty of
 *  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *  GNU Affero General Public License for more details.

 *  You should have received a copy of the GNU Affero General Public License
 *  along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package orchestrator implements C12: the full per-configuration-file
// pipeline — load, transform, limit, generate relations, render,
// threshold-guard, reconcile against the cache, and persist the
// result — wiring together C1 through C11 for one invocation, the way
// program/ss12000v2import.go wires one tenant's import together.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Sambruk/egilscim/internal/audit"
	"github.com/Sambruk/egilscim/internal/config"
	"github.com/Sambruk/egilscim/internal/limiter"
	"github.com/Sambruk/egilscim/internal/loaders"
	"github.com/Sambruk/egilscim/internal/object"
	"github.com/Sambruk/egilscim/internal/plugin"
	"github.com/Sambruk/egilscim/internal/reconcile"
	"github.com/Sambruk/egilscim/internal/relations"
	"github.com/Sambruk/egilscim/internal/renderedcache"
	"github.com/Sambruk/egilscim/internal/renderer"
	"github.com/Sambruk/egilscim/internal/scimclient"
	"github.com/Sambruk/egilscim/internal/threshold"
)

// Transform applies one derived-attribute rule (C8) to every loaded
// object of a given type, before limiting and rendering.
type Transform struct {
	Type  string
	Apply func(*object.Loaded)
}

// RelationSpec synthesises one generated type (C9) from whatever has
// already been loaded. Build receives every other type's loaded
// objects (after transforms) so a generator can join across types.
type RelationSpec struct {
	GeneratedType string
	Build         func(byType map[string][]*object.Loaded, onOrphan relations.OrphanReporter) []*object.Loaded
}

// Environment is everything one configuration file's run needs,
// assembled by the caller (cmd/egilscim) from a *config.Config plus
// the concrete backends it names.
type Environment struct {
	Config *config.Config

	// Loaders supplies one Loader per non-generated type named in
	// Config.SendOrder.
	Loaders map[string]loaders.Loader

	// Limiters supplies an optional per-type Limiter; a type absent
	// from this map is unrestricted (limiter.Null).
	Limiters map[string]limiter.Limiter

	// UserBlacklist is AND-ed into the limiter of every type whose
	// SCIM endpoint is "Users" (§3).
	UserBlacklist limiter.Limiter

	Transforms []Transform
	Relations  []RelationSpec

	Renderer *renderer.Renderer
	Guard    *threshold.Guard
	Dispatch scimclient.Dispatcher
	Audit    *audit.Log

	Logger *log.Logger
	Now    func() time.Time
}

// Options controls one Run invocation's deviations from the default
// load-everything-and-sync behaviour.
type Options struct {
	// RebuildCache discards the existing cache and treats every
	// current object as new, per the --rebuild-cache flag (§6).
	RebuildCache bool

	// SkipLoad names types to leave untouched this run: neither
	// loaded nor reconciled, their cached entries carried over as-is.
	SkipLoad map[string]bool

	// Test runs the full pipeline — including the threshold guard —
	// without dispatching any SCIM operation or persisting the cache,
	// per the --test flag (§6).
	Test bool

	// LockTimeout overrides Config.LockTimeoutSec when non-zero.
	LockTimeout time.Duration
}

// Summary reports what one Run accomplished.
type Summary struct {
	Counters     map[string]reconcile.Counters
	CacheWritten bool
}

func (o Options) skipLoad(typ string) bool {
	return o.SkipLoad != nil && o.SkipLoad[typ]
}

// Run executes one full pass over env.Config: load every configured
// type, apply transforms, admit loaded objects through their limiters,
// synthesise generated relations from what was admitted, render every
// object to JSON (generated objects pass their own type's limiter at
// this point), and reconcile the result against the on-disk cache. An
// object that fails to render is left out of this run and its cached
// copy, if any, is carried over unchanged; a plugin-blocked object is
// dropped.
func Run(ctx context.Context, env *Environment, opts Options) (*Summary, error) {
	logger := env.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	now := env.Now
	if now == nil {
		now = time.Now
	}

	cfg := env.Config

	lockTimeout := opts.LockTimeout
	if lockTimeout == 0 && cfg.LockTimeoutSec > 0 {
		lockTimeout = time.Duration(cfg.LockTimeoutSec) * time.Second
	}
	lock := renderedcache.Acquire(cfg.CachePath, lockTimeout)
	defer lock.Release()

	cached, err := renderedcache.Read(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: reading cache %s: %w", cfg.CachePath, err)
	}
	if opts.RebuildCache {
		cached = object.NewList()
	}

	loadedByType := make(map[string][]*object.Loaded, len(cfg.SendOrder))

	for _, typ := range cfg.SendOrder {
		tc := cfg.Types[typ]
		if tc.IsGenerated || opts.skipLoad(typ) {
			continue
		}
		ldr, ok := env.Loaders[typ]
		if !ok {
			return nil, fmt.Errorf("orchestrator: no loader configured for type %q", typ)
		}
		objs, err := ldr.Load(ctx, typ, tc.UniqueIdentifier)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: loading %s: %w", typ, err)
		}
		objs = loaders.WithUID(objs, tc.UniqueIdentifier, func(t string) {
			logger.Printf("dropping %s object with no value for its unique identifier", t)
		})
		loadedByType[typ] = objs
	}

	for _, t := range env.Transforms {
		for _, obj := range loadedByType[t.Type] {
			t.Apply(obj)
		}
	}

	for typ, objs := range loadedByType {
		lim := env.limiterFor(typ, cfg.Types[typ].SCIMEndpoint)
		admitted := objs[:0]
		for _, obj := range objs {
			if lim.Admit(obj) {
				admitted = append(admitted, obj)
			}
		}
		loadedByType[typ] = admitted
	}

	for _, spec := range env.Relations {
		generated := spec.Build(loadedByType, func(masterType, masterUID string) {
			logger.Printf("no %s relation found for %s %s, skipping", spec.GeneratedType, masterType, masterUID)
		})
		loadedByType[spec.GeneratedType] = generated
	}

	current := object.NewList()
	for _, typ := range cfg.SendOrder {
		if opts.skipLoad(typ) {
			for _, prior := range cached.ByType(typ) {
				current.Add(prior)
			}
			continue
		}

		tc := cfg.Types[typ]
		lim := env.limiterFor(typ, tc.SCIMEndpoint)

		for _, obj := range loadedByType[typ] {
			if !lim.Admit(obj) {
				continue
			}
			rendered, err := env.Renderer.Render(obj.UID, obj)
			if err != nil {
				if blocked := asBlocked(err); blocked {
					logger.Printf("render pipeline blocked %s %s", typ, obj.UID)
					continue
				}
				logger.Printf("failed to render %s %s: %s", typ, obj.UID, err)
				if prior := cached.Get(obj.UID); prior != nil && prior.Type == typ {
					current.Add(prior)
				}
				continue
			}
			current.Add(rendered)
		}
	}

	engine := &reconcile.Engine{
		SendOrder: cfg.SendOrder,
		Types:     reconcileTypes(cfg),
		Guard:     env.Guard,
		Dispatch:  env.Dispatch,
		Now:       now,
	}
	if env.Audit != nil {
		engine.Audit = env.Audit
	}
	if opts.Test {
		engine.Dispatch = dryRunDispatcher{}
	}

	newList, counters, err := engine.Run(ctx, current, cached)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	summary := &Summary{Counters: counters}
	if !opts.Test {
		if err := renderedcache.Write(cfg.CachePath, newList, cached); err != nil {
			return nil, fmt.Errorf("orchestrator: writing cache %s: %w", cfg.CachePath, err)
		}
		summary.CacheWritten = true
	}

	for typ, c := range counters {
		logger.Printf("%s: copies=%d creates=%d(%d failed) updates=%d(%d failed) deletes=%d(%d failed)",
			typ, c.Copies, c.Creates, c.CreateFailures, c.Updates, c.UpdateFailures, c.Deletes, c.DeleteFailures)
	}

	return summary, nil
}

func (env *Environment) limiterFor(typ, scimEndpoint string) limiter.Limiter {
	lim, ok := env.Limiters[typ]
	if !ok || lim == nil {
		lim = limiter.Null{}
	}
	return limiter.WithUserBlacklist(lim, scimEndpoint, env.UserBlacklist)
}

func reconcileTypes(cfg *config.Config) map[string]reconcile.TypeConfig {
	out := make(map[string]reconcile.TypeConfig, len(cfg.Types))
	for typ, tc := range cfg.Types {
		out[typ] = reconcile.TypeConfig{Endpoint: tc.SCIMEndpoint}
	}
	return out
}

// asBlocked reports whether err is (or wraps) a plugin.ErrBlocked, the
// one render failure that's expected in normal operation rather than
// a configuration or connectivity problem.
func asBlocked(err error) bool {
	for err != nil {
		if _, ok := err.(*plugin.ErrBlocked); ok {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// dryRunDispatcher satisfies scimclient.Dispatcher without touching
// the network, used under --test so a run can be validated (template
// expansion, plugins, thresholds) without sending anything downstream.
type dryRunDispatcher struct{}

func (dryRunDispatcher) Create(context.Context, string, string, string) (scimclient.Outcome, error) {
	return scimclient.Outcome{Status: 200, Success: true}, nil
}

func (dryRunDispatcher) Update(context.Context, string, string, string) (scimclient.Outcome, error) {
	return scimclient.Outcome{Status: 200, Success: true}, nil
}

func (dryRunDispatcher) Delete(context.Context, string, string) (scimclient.Outcome, error) {
	return scimclient.Outcome{Status: 200, Success: true}, nil
}
