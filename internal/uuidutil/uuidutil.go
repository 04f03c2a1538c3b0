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

// Package uuidutil derives stable, name-based UUIDs for synthesised
// relation objects and for naming the advisory cache lock.
//
// The separator used to join two names is a compatibility point: it's
// baked into every UUID ever derived from a pair, so it must never
// change once chosen.
package uuidutil

import "github.com/google/uuid"

// pairSeparator joins two names before hashing. Don't change this.
const pairSeparator = "|"

// namespace is the fixed namespace UUID all derivations are rooted in.
// Picked once, must never change (see package doc).
var namespace = uuid.MustParse("c4c76141-20f0-4c5a-a76a-ef36e1a8dcd6")

// Derive returns a deterministic UUID for a single name.
func Derive(name string) string {
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// DerivePair returns a deterministic UUID for an ordered pair of names.
// DerivePair(a, b) == Derive(a + "|" + b), but callers should prefer
// DerivePair so the separator stays centralized.
func DerivePair(a, b string) string {
	return Derive(a + pairSeparator + b)
}
