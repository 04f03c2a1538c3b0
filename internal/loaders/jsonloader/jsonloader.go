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

// Package jsonloader reads loaded objects from a JSON file holding an
// array of flat attribute objects — each JSON value becomes a
// single-valued attribute, each JSON array of strings becomes a
// multi-valued one. encoding/json is the standard library's own
// decoder; no third-party JSON library appears anywhere in the
// retrieved example pack for a plain array-of-objects shape like this
// one (see DESIGN.md).
package jsonloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Sambruk/egilscim/internal/object"
)

// Backend reads one JSON array of objects as a single EGIL type.
type Backend struct {
	Path string
	Type string
}

func (b *Backend) Load(_ context.Context, typ, uniqueIdentifierAttr string) ([]*object.Loaded, error) {
	if typ != b.Type {
		return nil, fmt.Errorf("jsonloader: configured for type %q, asked for %q", b.Type, typ)
	}

	data, err := os.ReadFile(b.Path)
	if err != nil {
		return nil, fmt.Errorf("jsonloader: reading %s: %w", b.Path, err)
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("jsonloader: parsing %s: %w", b.Path, err)
	}

	out := make([]*object.Loaded, 0, len(records))
	for _, record := range records {
		obj := object.NewLoaded(typ)
		for attr, raw := range record {
			obj.Set(attr, toValues(raw))
		}
		out = append(out, obj)
	}
	return out, nil
}

func toValues(raw interface{}) []string {
	switch v := raw.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}
