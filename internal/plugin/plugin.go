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

// Package plugin implements the renderer's post-processing pipeline
// (§4.4 step 5). The original C ABI (init/include/process/free/exit) is
// modelled here as an in-process interface, per §9's "Dynamic dispatch
// for plugins" guidance.
package plugin

import "fmt"

// Classification is a plugin's verdict on one rendered object.
type Classification int

const (
	// Process means the plugin has nothing to object to; its Process
	// method (if any mutation is needed) still runs.
	Process Classification = iota
	// Block drops the object from this run entirely.
	Block
	// Skip leaves the JSON untouched and short-circuits the remaining
	// plugins in the pipeline.
	Skip
)

func (c Classification) String() string {
	switch c {
	case Process:
		return "PROCESS"
	case Block:
		return "BLOCK"
	case Skip:
		return "SKIP"
	default:
		return "UNKNOWN"
	}
}

// Plugin is one stage of the post-processing pipeline. Classify decides
// whether this object proceeds (and whether later plugins still run);
// Process transforms the JSON body when Classify returns Process.
type Plugin interface {
	Classify(objType, id, json string) Classification
	Process(objType, id, json string) (string, error)
}

// Func adapts a classify+process pair into a Plugin without requiring a
// named type, for simple built-ins below.
type Func struct {
	ClassifyFunc func(objType, id, json string) Classification
	ProcessFunc  func(objType, id, json string) (string, error)
}

func (f Func) Classify(objType, id, json string) Classification {
	return f.ClassifyFunc(objType, id, json)
}

func (f Func) Process(objType, id, json string) (string, error) {
	if f.ProcessFunc == nil {
		return json, nil
	}
	return f.ProcessFunc(objType, id, json)
}

// ErrBlocked is returned by Pipeline.Run when a plugin blocked the
// object. Like any other render failure it affects only that object;
// unlike other render failures, the orchestrator drops a blocked
// object without carrying over its cached copy.
type ErrBlocked struct {
	Plugin string
	Type   string
	ID     string
}

func (e *ErrBlocked) Error() string {
	return fmt.Sprintf("plugin %s blocked %s %s", e.Plugin, e.Type, e.ID)
}

// Pipeline runs an ordered list of plugins over a rendered JSON body.
type Pipeline struct {
	plugins []namedPlugin
}

type namedPlugin struct {
	name   string
	plugin Plugin
}

// NewPipeline builds a pipeline from plugins in dispatch order. Names
// are used only for diagnostics (ErrBlocked, logging).
func NewPipeline(named map[string]Plugin, order []string) *Pipeline {
	p := &Pipeline{}
	for _, name := range order {
		if pl, ok := named[name]; ok {
			p.plugins = append(p.plugins, namedPlugin{name: name, plugin: pl})
		}
	}
	return p
}

// Run executes every plugin against json in order. A Block from any
// plugin stops the pipeline and returns ErrBlocked. A Skip stops the
// pipeline successfully, leaving json as it stood at that point.
func (p *Pipeline) Run(objType, id, json string) (string, error) {
	current := json
	for _, np := range p.plugins {
		switch np.plugin.Classify(objType, id, current) {
		case Block:
			return "", &ErrBlocked{Plugin: np.name, Type: objType, ID: id}
		case Skip:
			return current, nil
		case Process:
			next, err := np.plugin.Process(objType, id, current)
			if err != nil {
				return "", fmt.Errorf("plugin %s: %w", np.name, err)
			}
			current = next
		}
	}
	return current, nil
}
