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

// Package relations implements C9: synthesising Employment, Activity,
// StudentGroup and Organisation objects by joining previously loaded
// types, grounded on generated_load.cpp's get_generated_employment /
// get_generated_activity / create_relational_id.
package relations

import (
	"regexp"
	"strings"

	"github.com/Sambruk/egilscim/internal/object"
	"github.com/Sambruk/egilscim/internal/uuidutil"
)

// OrphanReporter is notified once per master object that has no
// matching related object, per §4.6's "log the orphan master once,
// skip the relation, and continue".
type OrphanReporter func(masterType, masterUID string)

// Variable names a value pulled onto the synthesised object: either a
// bare attribute name (pulled from the master) or "Type.attr" (pulled
// from the related object of that type), per §4.6 step 4.
type Variable struct {
	SourceType string // empty means "pull from the master"
	Attribute  string
}

// ParseVariables turns the `<type>-scim-variables` configuration list
// ("Employment.startDate", "name", ...) into Variables.
func ParseVariables(entries []string) []Variable {
	vars := make([]Variable, 0, len(entries))
	for _, e := range entries {
		if idx := strings.IndexByte(e, '.'); idx >= 0 {
			vars = append(vars, Variable{SourceType: e[:idx], Attribute: e[idx+1:]})
		} else {
			vars = append(vars, Variable{Attribute: e})
		}
	}
	return vars
}

func populate(gen *object.Loaded, vars []Variable, master, related *object.Loaded) {
	for _, v := range vars {
		switch v.SourceType {
		case "", master.Type:
			gen.Set(v.Attribute, master.Values(v.Attribute))
		case related.Type:
			gen.Set(v.Attribute, related.Values(v.Attribute))
		}
	}
}

// PairedSpec describes an Employment-style or Activity-style
// relation: every value of a master's key attribute is looked up
// against a related object's key attribute; a match mints one
// synthesised object per pair.
type PairedSpec struct {
	GeneratedType  string
	MasterKeyAttr  string // attr_m: master's values to join on
	RelatedKeyAttr string // k: related object's key attribute
	Variables      []Variable
	IgnoreOrphans  bool
}

// indexByAttribute builds a lookup from attribute value to every
// object carrying that value, mirroring the "related object whose k
// equals v" description in §3.
func indexByAttribute(objs []*object.Loaded, attr string) map[string][]*object.Loaded {
	idx := make(map[string][]*object.Loaded)
	for _, o := range objs {
		for _, v := range o.Values(attr) {
			idx[v] = append(idx[v], o)
		}
	}
	return idx
}

// GeneratePaired synthesises Employment/Activity-style objects. The
// relation UUID is derived remote-part-first, local-part-second:
// DerivePair(related.UID, master.UID), per §4.6 step 3.
func GeneratePaired(masters, related []*object.Loaded, spec PairedSpec, onOrphan OrphanReporter) []*object.Loaded {
	relatedIdx := indexByAttribute(related, spec.RelatedKeyAttr)
	var generated []*object.Loaded

	for _, master := range masters {
		matched := false
		for _, key := range master.Values(spec.MasterKeyAttr) {
			matches, ok := relatedIdx[key]
			if !ok {
				continue
			}
			matched = true
			for _, r := range matches {
				gen := object.NewLoaded(spec.GeneratedType)
				gen.UID = uuidutil.DerivePair(r.UID, master.UID)
				populate(gen, spec.Variables, master, r)
				generated = append(generated, gen)
			}
		}
		if !matched && !spec.IgnoreOrphans && onOrphan != nil {
			onOrphan(master.Type, master.UID)
		}
	}

	return generated
}

// StudentGroupSpec describes a StudentGroup-style relation: a
// multi-valued source attribute is matched against a regex; specific
// capture groups feed the UUID derivation, others populate attributes.
type StudentGroupSpec struct {
	GeneratedType string
	SourceAttr    string
	Pattern       *regexp.Regexp
	UUIDGroups    []int          // capture group indices, pipe-joined, fed to uuidutil.Derive
	Attributes    map[string]int // attribute name -> capture group index
}

// GenerateStudentGroups synthesises one object per regex match across
// every value of every source object's SourceAttr.
func GenerateStudentGroups(sources []*object.Loaded, spec StudentGroupSpec) []*object.Loaded {
	var generated []*object.Loaded

	for _, src := range sources {
		for _, v := range src.Values(spec.SourceAttr) {
			m := spec.Pattern.FindStringSubmatch(v)
			if m == nil {
				continue
			}

			keyParts := make([]string, 0, len(spec.UUIDGroups))
			for _, g := range spec.UUIDGroups {
				if g < len(m) {
					keyParts = append(keyParts, m[g])
				}
			}

			gen := object.NewLoaded(spec.GeneratedType)
			gen.UID = uuidutil.Derive(strings.Join(keyParts, "|"))
			for attr, g := range spec.Attributes {
				if g < len(m) {
					gen.Set(attr, []string{m[g]})
				}
			}
			generated = append(generated, gen)
		}
	}

	return generated
}

// OrganisationSpec describes the single static Organisation-style
// record: a fixed UUID and a fixed attribute set, taken directly from
// configuration (§3: "a single static record; UUID taken from
// configuration").
type OrganisationSpec struct {
	GeneratedType string
	UUID          string
	Attributes    map[string][]string
}

// GenerateOrganisation builds the one synthesised Organisation object.
func GenerateOrganisation(spec OrganisationSpec) *object.Loaded {
	gen := object.NewLoaded(spec.GeneratedType)
	gen.UID = spec.UUID
	for attr, values := range spec.Attributes {
		gen.Set(attr, values)
	}
	return gen
}
