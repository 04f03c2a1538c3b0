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

// Package threshold implements C6: rejecting a run whose per-type
// object-count delta is implausibly large, grounded on
// thresholds.cpp's verify_thresholds_for_type / get_threshold fallback
// chain.
package threshold

import "fmt"

// genericType is the fallback type name used when a type has no
// threshold of its own configured.
const genericType = "Object"

// Config holds the absolute and relative (percent) limits for one
// type. HasAbs and HasRel say whether each limit applies; a limit that
// applies with a value of zero allows no change at all.
type Config struct {
	Absolute int
	Relative float64
	HasAbs   bool
	HasRel   bool
}

// Guard evaluates cached-vs-current object counts per type against a
// set of per-type configs, falling back to a generic "Object" entry
// when a type has none of its own.
type Guard struct {
	byType map[string]Config
}

// New creates a Guard. byType may include a genericType ("Object")
// entry used as the fallback for any type absent from the map.
func New(byType map[string]Config) *Guard {
	return &Guard{byType: byType}
}

// ExceededError reports which type's delta tripped the guard.
type ExceededError struct {
	Type          string
	CachedCount   int
	CurrentCount  int
	Delta         int
	AbsoluteLimit int
	HasAbsolute   bool
	RelativeLimit float64
	HasRelative   bool
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("threshold exceeded for type %s: cached=%d current=%d delta=%d",
		e.Type, e.CachedCount, e.CurrentCount, e.Delta)
}

func (g *Guard) configFor(typ string) (Config, bool) {
	if cfg, ok := g.byType[typ]; ok {
		return cfg, true
	}
	if cfg, ok := g.byType[genericType]; ok {
		return cfg, true
	}
	return Config{}, false
}

// Check compares cachedCount and currentCount for typ against the
// configured thresholds (or their generic fallback). It returns an
// *ExceededError when the run should be rejected, nil otherwise
// (including when no threshold at all is configured for the type).
func (g *Guard) Check(typ string, cachedCount, currentCount int) error {
	cfg, ok := g.configFor(typ)
	if !ok {
		return nil
	}

	delta := currentCount - cachedCount
	if delta < 0 {
		delta = -delta
	}

	if cfg.HasAbs && delta > cfg.Absolute {
		return &ExceededError{
			Type: typ, CachedCount: cachedCount, CurrentCount: currentCount, Delta: delta,
			AbsoluteLimit: cfg.Absolute, HasAbsolute: true,
		}
	}

	if cfg.HasRel {
		limit := cfg.Relative * 0.01 * float64(cachedCount)
		if float64(delta) > limit {
			return &ExceededError{
				Type: typ, CachedCount: cachedCount, CurrentCount: currentCount, Delta: delta,
				RelativeLimit: cfg.Relative, HasRelative: true,
			}
		}
	}

	return nil
}

// CheckAll runs Check for every type in order, returning the first
// failure (the caller iterates types in the configured send order, per
// §4.5's "runs before any SCIM operation is dispatched").
func (g *Guard) CheckAll(order []string, cachedCounts, currentCounts map[string]int) error {
	for _, typ := range order {
		if err := g.Check(typ, cachedCounts[typ], currentCounts[typ]); err != nil {
			return err
		}
	}
	return nil
}
