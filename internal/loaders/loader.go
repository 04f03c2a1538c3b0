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

// Package loaders defines the source-backend interface the
// orchestrator loads objects through, plus one concrete
// implementation per backend kind (§1's out-of-scope-but-needed
// loaders: directory/CSV/SQL/JSON).
package loaders

import (
	"context"

	"github.com/Sambruk/egilscim/internal/object"
)

// Loader retrieves every object of one EGIL type from a source
// backend. The unique-identifier attribute name is supplied so a
// loader can drop objects lacking it, per §3's UID invariant.
type Loader interface {
	Load(ctx context.Context, typ, uniqueIdentifierAttr string) ([]*object.Loaded, error)
}

// Func adapts a plain function into a Loader.
type Func func(ctx context.Context, typ, uniqueIdentifierAttr string) ([]*object.Loaded, error)

func (f Func) Load(ctx context.Context, typ, uniqueIdentifierAttr string) ([]*object.Loaded, error) {
	return f(ctx, typ, uniqueIdentifierAttr)
}

// WithUID filters out objects that have no value for
// uniqueIdentifierAttr and stamps UID from it. The concrete loaders do
// not call it themselves; the orchestrator applies it to every
// loader's output (§3: "objects lacking it are dropped with a
// warning").
func WithUID(objs []*object.Loaded, uniqueIdentifierAttr string, onDropped func(typ string)) []*object.Loaded {
	kept := make([]*object.Loaded, 0, len(objs))
	for _, o := range objs {
		uid := o.Get(uniqueIdentifierAttr)
		if uid == "" {
			if onDropped != nil {
				onDropped(o.Type)
			}
			continue
		}
		o.UID = uid
		kept = append(kept, o)
	}
	return kept
}
