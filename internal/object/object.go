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

// Package object holds the two core data shapes the engine works with:
// Loaded (what a backend produces) and Rendered (what the cache and the
// SCIM dispatcher consume).
package object

import "sort"

// Loaded is one object read from a source backend, before rendering.
// Attribute values preserve insertion order and may contain duplicates;
// an absent attribute is simply not present in Attributes.
type Loaded struct {
	Type       string
	Attributes map[string][]string
	UID        string
}

// NewLoaded creates an empty Loaded object of the given type.
func NewLoaded(typ string) *Loaded {
	return &Loaded{
		Type:       typ,
		Attributes: make(map[string][]string),
	}
}

// Get returns the first value of an attribute, or "" if absent.
func (l *Loaded) Get(name string) string {
	v := l.Attributes[name]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Values returns every value of an attribute (nil if absent).
func (l *Loaded) Values(name string) []string {
	return l.Attributes[name]
}

// Set replaces the values of an attribute.
func (l *Loaded) Set(name string, values []string) {
	l.Attributes[name] = values
}

// Append adds values to whatever an attribute already holds.
func (l *Loaded) Append(name string, values []string) {
	l.Attributes[name] = append(l.Attributes[name], values...)
}

// Clone makes a deep copy, used when a generator decorates a master
// object's attributes onto a freshly synthesised one.
func (l *Loaded) Clone() *Loaded {
	c := NewLoaded(l.Type)
	c.UID = l.UID
	for k, v := range l.Attributes {
		cp := make([]string, len(v))
		copy(cp, v)
		c.Attributes[k] = cp
	}
	return c
}

// Rendered is the canonical unit of cache and SCIM traffic: a loaded
// object's UID, its EGIL type, and its fully expanded JSON body.
type Rendered struct {
	ID   string
	Type string
	JSON string
}

// Equal implements the byte-for-byte equality §3 requires: id, type and
// json must all match exactly for the diff to treat two records as
// unchanged.
func (r *Rendered) Equal(other *Rendered) bool {
	if other == nil {
		return false
	}
	return r.ID == other.ID && r.Type == other.Type && r.JSON == other.JSON
}

// List is an ordered-by-insertion mapping from id to Rendered object.
// Lookup by id is O(1); Objects returns objects in insertion order so two
// runs against the same inputs produce byte-identical iteration order
// (needed for deterministic cache round-trips).
type List struct {
	byID  map[string]*Rendered
	order []string
}

// NewList creates an empty rendered object list.
func NewList() *List {
	return &List{byID: make(map[string]*Rendered)}
}

// Add inserts or replaces an object by id.
func (l *List) Add(obj *Rendered) {
	if _, exists := l.byID[obj.ID]; !exists {
		l.order = append(l.order, obj.ID)
	}
	l.byID[obj.ID] = obj
}

// Get looks up an object by id.
func (l *List) Get(id string) *Rendered {
	return l.byID[id]
}

// Delete removes an object by id, if present.
func (l *List) Delete(id string) {
	if _, exists := l.byID[id]; !exists {
		return
	}
	delete(l.byID, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of objects in the list.
func (l *List) Len() int {
	return len(l.byID)
}

// Objects returns every object in insertion order.
func (l *List) Objects() []*Rendered {
	out := make([]*Rendered, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// ByType returns every object of the given type, in insertion order.
func (l *List) ByType(typ string) []*Rendered {
	out := make([]*Rendered, 0)
	for _, id := range l.order {
		obj := l.byID[id]
		if obj.Type == typ {
			out = append(out, obj)
		}
	}
	return out
}

// CountByType returns how many objects in the list have the given type.
func (l *List) CountByType(typ string) int {
	n := 0
	for _, id := range l.order {
		if l.byID[id].Type == typ {
			n++
		}
	}
	return n
}

// SortedIDs returns every id in the list sorted lexically. Useful for
// deterministic test assertions and for size estimation.
func (l *List) SortedIDs() []string {
	ids := make([]string, 0, len(l.byID))
	for id := range l.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
