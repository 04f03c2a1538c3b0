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

// Package sqlloader implements the SQL source backend: reading loaded
// objects out of a relational table instead of writing SCIM resources
// into one. Grounded on windermere/sqlbackend.go and
// windermere/windermere.go's multi-driver sqlx.Open dispatch, read
// direction instead of write direction.
package sqlloader

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/Sambruk/egilscim/internal/object"
)

// Backend reads loaded objects from a relational database. One row
// becomes one Loaded object of Type typ; every column becomes a
// single-valued attribute named after the column.
type Backend struct {
	db *sqlx.DB

	// TableForType maps an EGIL type name to the SQL table holding its
	// rows, mirroring sqlbackend.go's mainTable lookup.
	TableForType map[string]string

	// IDColumn is not read by Load: the unique identifier comes from
	// the column whose name equals the configured attribute name.
	IDColumn string
}

// Open opens a database connection with sqlx, selecting the driver by
// backingType the way windermere.New does ("mysql", "sqlserver",
// "sqlite").
func Open(backingType, backingSource string) (*sqlx.DB, error) {
	db, err := sqlx.Open(backingType, backingSource)
	if err != nil {
		return nil, fmt.Errorf("sqlloader: opening %s database: %w", backingType, err)
	}
	db.SetConnMaxLifetime(0)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	return db, nil
}

// New builds a Backend around an already-open *sqlx.DB.
func New(db *sqlx.DB, tableForType map[string]string) *Backend {
	return &Backend{db: db, TableForType: tableForType}
}

// Load reads every row of typ's table into a Loaded object, column by
// column.
func (b *Backend) Load(ctx context.Context, typ, uniqueIdentifierAttr string) ([]*object.Loaded, error) {
	table, ok := b.TableForType[typ]
	if !ok {
		return nil, fmt.Errorf("sqlloader: no table configured for type %q", typ)
	}

	rows, err := b.db.QueryxContext(ctx, fmt.Sprintf("SELECT * FROM %s", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("sqlloader: querying %s: %w", table, err)
	}
	defer rows.Close()

	var out []*object.Loaded
	for rows.Next() {
		record := make(map[string]interface{})
		if err := rows.MapScan(record); err != nil {
			return nil, fmt.Errorf("sqlloader: scanning row from %s: %w", table, err)
		}

		obj := object.NewLoaded(typ)
		for column, value := range record {
			if value == nil {
				continue
			}
			obj.Set(column, []string{stringify(value)})
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// quoteIdent is a minimal identifier quoter: table names come from
// this process's own configuration file, never from remote input, so
// a full SQL-injection-proof quoter isn't the threat model here — this
// just guards against accidental whitespace in a misconfigured table
// name.
func quoteIdent(ident string) string {
	return "\"" + ident + "\""
}
