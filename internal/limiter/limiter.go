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

// Package limiter implements C7: the boolean predicate tree that
// admits or rejects a loaded object before rendering (§3's "Load
// limiter").
package limiter

import (
	"regexp"

	"github.com/Sambruk/egilscim/internal/object"
)

// Limiter evaluates a loaded object and reports whether it should
// proceed into rendering.
type Limiter interface {
	Admit(obj *object.Loaded) bool
}

// Null admits every object; it's the default when a type has no
// limiter configured.
type Null struct{}

func (Null) Admit(*object.Loaded) bool { return true }

// List admits an object when one of its values for attribute (or its
// UID when attribute is empty) appears in the given set of strings.
type List struct {
	Attribute string // empty means match against obj.UID
	Values    map[string]struct{}
}

// NewList builds a List limiter from a slice of admitted values.
func NewList(attribute string, values []string) *List {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return &List{Attribute: attribute, Values: set}
}

func (l *List) Admit(obj *object.Loaded) bool {
	candidates := l.candidates(obj)
	for _, c := range candidates {
		if _, ok := l.Values[c]; ok {
			return true
		}
	}
	return false
}

func (l *List) candidates(obj *object.Loaded) []string {
	if l.Attribute == "" {
		return []string{obj.UID}
	}
	return obj.Values(l.Attribute)
}

// Regex admits an object when the given attribute has at least one
// value fully matching pattern.
type Regex struct {
	Attribute string
	pattern   *regexp.Regexp
}

// NewRegex compiles pattern (anchored to match the whole value, as the
// original tool's regex limiters do) and builds a Regex limiter.
func NewRegex(attribute, pattern string) (*Regex, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	return &Regex{Attribute: attribute, pattern: re}, nil
}

func (r *Regex) Admit(obj *object.Loaded) bool {
	for _, v := range obj.Values(r.Attribute) {
		if r.pattern.MatchString(v) {
			return true
		}
	}
	return false
}

// Not inverts its child.
type Not struct {
	Child Limiter
}

func (n Not) Admit(obj *object.Loaded) bool { return !n.Child.Admit(obj) }

// And admits only if every child admits.
type And struct {
	Children []Limiter
}

func (a And) Admit(obj *object.Loaded) bool {
	for _, c := range a.Children {
		if !c.Admit(obj) {
			return false
		}
	}
	return true
}

// Or admits if any child admits. An empty Or (no children) never
// admits, matching an empty logical disjunction.
type Or struct {
	Children []Limiter
}

func (o Or) Admit(obj *object.Loaded) bool {
	for _, c := range o.Children {
		if c.Admit(obj) {
			return true
		}
	}
	return false
}

// WithUserBlacklist ANDs base with a blacklist limiter for any type
// whose SCIM endpoint is "Users" (§3: "A process-global optional user
// blacklist is, when present, logically AND-ed with the limiter of
// every type whose SCIM endpoint is Users").
func WithUserBlacklist(base Limiter, scimEndpoint string, blacklist Limiter) Limiter {
	if blacklist == nil || scimEndpoint != "Users" {
		return base
	}
	return And{Children: []Limiter{base, Not{Child: blacklist}}}
}
