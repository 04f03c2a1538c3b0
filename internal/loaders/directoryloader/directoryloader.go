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

// Package directoryloader defines the directory/LDAP source backend
// at interface level only. No LDAP client library appears anywhere in
// the retrieved example pack, and §1 scopes "source-backend loaders
// ... at interface level" explicitly, so this stays a documented
// not-yet-implemented Loader rather than a hand-rolled LDAP client
// built on the standard library alone (see DESIGN.md).
package directoryloader

import (
	"context"
	"fmt"

	"github.com/Sambruk/egilscim/internal/object"
)

// Backend is a placeholder satisfying loaders.Loader; Load always
// fails until a concrete LDAP client dependency is added.
type Backend struct {
	URL      string
	BindDN   string
	BaseDN   string
	Password string
}

func (b *Backend) Load(context.Context, string, string) ([]*object.Loaded, error) {
	return nil, fmt.Errorf("directoryloader: not implemented — no LDAP client library is available in this build")
}
