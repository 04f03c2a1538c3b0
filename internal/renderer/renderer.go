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

// Package renderer implements C4: turning a Loaded object into a
// Rendered one via template expansion, a one-per-type-per-process JSON
// validity check, and the post-processing plugin pipeline.
package renderer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Sambruk/egilscim/internal/object"
	"github.com/Sambruk/egilscim/internal/plugin"
	"github.com/Sambruk/egilscim/internal/template"
)

// TypeConfig holds the per-type rendering inputs: the template string
// and the ordered plugin names to run after expansion.
type TypeConfig struct {
	Template string
	Plugins  []string
}

// Renderer turns Loaded objects into Rendered ones, type by type.
type Renderer struct {
	expander *template.Expander
	types    map[string]TypeConfig
	plugins  map[string]plugin.Plugin
	order    []string

	mu       sync.Mutex
	verified map[string]bool // type -> its template has parsed as valid JSON at least once
}

// New creates a Renderer. noEscapeByDefault mirrors the global
// configuration flag inverting ${name}/${|name} escaping; namedPlugins
// is the full set of registered plugins, which each type's
// TypeConfig.Plugins names in its dispatch order.
func New(types map[string]TypeConfig, namedPlugins map[string]plugin.Plugin, noEscapeByDefault bool) *Renderer {
	return &Renderer{
		expander: &template.Expander{NoEscapeByDefault: noEscapeByDefault},
		types:    types,
		plugins:  namedPlugins,
		verified: make(map[string]bool),
	}
}

type loadedScope struct {
	obj *object.Loaded
}

func (s loadedScope) Get(name string) string        { return s.obj.Get(name) }
func (s loadedScope) Values(name string) []string   { return s.obj.Values(name) }

// Render expands obj's template, verifies the result parses as JSON
// (once per type per process), runs the plugin pipeline, and returns
// the final Rendered object. It returns either a non-nil Rendered or a
// non-nil error, never neither.
func (r *Renderer) Render(id string, obj *object.Loaded) (*object.Rendered, error) {
	cfg, ok := r.types[obj.Type]
	if !ok {
		return nil, fmt.Errorf("renderer: no template configured for type %q", obj.Type)
	}

	expanded, err := r.expander.Expand(cfg.Template, loadedScope{obj: obj})
	if err != nil {
		return nil, fmt.Errorf("renderer: expanding %s %s: %w", obj.Type, id, err)
	}

	if err := r.verifyJSON(obj.Type, expanded); err != nil {
		return nil, fmt.Errorf("renderer: %s %s did not produce valid JSON: %w", obj.Type, id, err)
	}

	pipeline := plugin.NewPipeline(r.plugins, cfg.Plugins)
	processed, err := pipeline.Run(obj.Type, id, expanded)
	if err != nil {
		return nil, fmt.Errorf("renderer: post-processing %s %s: %w", obj.Type, id, err)
	}

	return &object.Rendered{ID: id, Type: obj.Type, JSON: processed}, nil
}

// verifyJSON checks that expanded parses as a JSON document, but only
// actually runs json.Valid once per type for the life of the Renderer
// (§4.4 step 4 / the render-time memoisation supplemented from
// renderer.cpp).
func (r *Renderer) verifyJSON(typ, expanded string) error {
	r.mu.Lock()
	already := r.verified[typ]
	r.mu.Unlock()
	if already {
		return nil
	}

	if !json.Valid([]byte(expanded)) {
		return fmt.Errorf("invalid JSON: %s", expanded)
	}

	r.mu.Lock()
	r.verified[typ] = true
	r.mu.Unlock()
	return nil
}
