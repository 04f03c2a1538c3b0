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

// Package transform implements C8: deriving new attributes from
// existing ones before rendering (§3's "Attribute transformer").
package transform

import (
	"net/url"
	"regexp"

	"github.com/Sambruk/egilscim/internal/object"
)

// Rule is one {match, to, replace} entry of a RegexTransform.
type Rule struct {
	Match   *regexp.Regexp
	To      string
	Replace string
}

// RegexTransform rewrites the values of From by applying Rules in
// order, writing each result into the matching rule's To, or into the
// transform's To when the rule names none. With MatchAll set, every
// matching rule fires for a value; otherwise only the first match does.
// A value matched by no rule is copied verbatim into NoMatch when that
// attribute name is non-empty.
type RegexTransform struct {
	From     string
	To       string
	Rules    []Rule
	MatchAll bool
	NoMatch  string
}

// Apply runs the transform against obj, writing derived values
// directly onto obj's attributes (transforms run before rendering, so
// mutating in place matches the load-phase pipeline's semantics).
func (t *RegexTransform) Apply(obj *object.Loaded) {
	derived := make(map[string][]string)
	var noMatch []string

	for _, v := range obj.Values(t.From) {
		matchedAny := false
		for _, rule := range t.Rules {
			if !rule.Match.MatchString(v) {
				continue
			}
			to := rule.To
			if to == "" {
				to = t.To
			}
			derived[to] = append(derived[to], rule.Match.ReplaceAllString(v, rule.Replace))
			matchedAny = true
			if !t.MatchAll {
				break
			}
		}
		if !matchedAny && t.NoMatch != "" {
			noMatch = append(noMatch, v)
		}
	}

	for to, values := range derived {
		obj.Set(to, values)
	}
	if t.NoMatch != "" && len(noMatch) > 0 {
		obj.Append(t.NoMatch, noMatch)
	}
}

// URLDecodeTransform copies From into To, URL-decoding each value.
// Values that fail to decode are copied verbatim, matching the
// original's tolerant behaviour for malformed percent-encoding.
type URLDecodeTransform struct {
	From string
	To   string
}

func (t *URLDecodeTransform) Apply(obj *object.Loaded) {
	values := obj.Values(t.From)
	if len(values) == 0 {
		return
	}
	decoded := make([]string, len(values))
	for i, v := range values {
		if d, err := url.QueryUnescape(v); err == nil {
			decoded[i] = d
		} else {
			decoded[i] = v
		}
	}
	obj.Set(t.To, decoded)
}
