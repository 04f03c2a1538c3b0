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

// Package audit implements C11: the one-line-per-operation journal,
// grounded on audit.cpp's scim_operation_audit_message /
// object_description, and on the file-opening pattern
// accesslog.go uses for the HTTP access log.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Operation identifies the kind of SCIM call an audit line reports.
type Operation int

const (
	Copy Operation = iota
	Create
	Update
	Delete
)

func (op Operation) String() string {
	switch op {
	case Copy:
		return "copy"
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// FailureClass classifies a failed operation the way
// scim_operation_audit_message does, from the reported HTTP status.
type FailureClass int

const (
	// None means the operation succeeded; no failure annotation is
	// printed.
	None FailureClass = iota
	Conflict
	NotFound
	Other
)

func (f FailureClass) String() string {
	switch f {
	case Conflict:
		return "conflict"
	case NotFound:
		return "not-found"
	case Other:
		return "other"
	default:
		return ""
	}
}

// ClassifyStatus maps an HTTP status code to a FailureClass the way
// audit.cpp's failure_type_to_string callers do.
func ClassifyStatus(status int) FailureClass {
	switch status {
	case 409:
		return Conflict
	case 404:
		return NotFound
	default:
		return Other
	}
}

// Log writes one line per SCIM operation to an append-only file.
type Log struct {
	file   *os.File
	logger *log.Logger
}

// Open opens (creating if necessary) the audit log file at path for
// appending, matching accessLogHandler's O_APPEND|O_CREATE|O_WRONLY
// pattern.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", path, err)
	}
	return &Log{
		file:   f,
		logger: log.New(f, "", 0),
	}, nil
}

// NewWithWriter builds a Log around an arbitrary writer, for tests and
// for piping audit lines somewhere other than a file.
func NewWithWriter(w io.Writer) *Log {
	return &Log{logger: log.New(w, "", 0)}
}

// Close releases the underlying file, if any.
func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Record writes one audit line for a dispatched (or copied) operation.
// failure is None for a successful operation; description is the
// object's best-effort human description (see Describe).
func (l *Log) Record(when time.Time, op Operation, failure FailureClass, objType, description string) {
	line := when.Format("2006-01-02 15:04:05") + " " + op.String()
	if failure != None {
		line += " (" + failure.String() + ")"
	}
	line += " " + objType + " " + description
	l.logger.Println(line)
}

// Describe extracts a human-readable identifier from a rendered
// object's JSON body, in the preference order audit.cpp's
// object_description uses: userName, then displayName (with an
// optional owner.value suffix, matching a group-style object), then an
// Employment's user.value / employedAt.value pair. Whenever a friendly
// name is found it is returned as "<friendly-name> (<uuid>)"; the uuid
// always appears, alone, when no friendly name can be extracted.
func Describe(objType, uuid, renderedJSON string) string {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(renderedJSON), &doc); err != nil {
		return uuid
	}

	friendly, ok := friendlyName(objType, doc)
	if !ok {
		return uuid
	}
	return friendly + " (" + uuid + ")"
}

func friendlyName(objType string, doc map[string]interface{}) (string, bool) {
	if userName, ok := stringField(doc, "userName"); ok {
		return userName, true
	}

	if displayName, ok := stringField(doc, "displayName"); ok {
		if ownerValue, ok := stringField(nested(doc, "owner"), "value"); ok {
			return displayName + " owner: " + ownerValue, true
		}
		return displayName, true
	}

	if objType == "Employment" {
		userValue, hasUser := stringField(nested(doc, "user"), "value")
		employedAtValue, hasEmployedAt := stringField(nested(doc, "employedAt"), "value")
		switch {
		case hasUser && hasEmployedAt:
			return "user: " + userValue + " employed at: " + employedAtValue, true
		case hasUser:
			return "user: " + userValue, true
		case hasEmployedAt:
			return "employed at: " + employedAtValue, true
		}
	}

	return "", false
}

func nested(doc map[string]interface{}, key string) map[string]interface{} {
	if doc == nil {
		return nil
	}
	v, ok := doc[key]
	if !ok {
		return nil
	}
	m, _ := v.(map[string]interface{})
	return m
}

func stringField(doc map[string]interface{}, key string) (string, bool) {
	if doc == nil {
		return "", false
	}
	v, ok := doc[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
