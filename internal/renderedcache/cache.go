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

// Package renderedcache implements the on-disk binary cache of rendered
// objects (magic + version + length-prefixed records), the atomic
// temp-then-rename replace protocol, and the advisory lock guarding it.
package renderedcache

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/renameio"

	"github.com/Sambruk/egilscim/internal/object"
)

const (
	magicNumber    uint64 = 0xFFEEDDCCFEDCFEDC
	currentVersion uint8  = 1
	headerSize            = 8 + 1
)

// ErrBadFormat is returned when the magic number doesn't match.
var ErrBadFormat = errors.New("renderedcache: bad magic number")

// ErrUnsupportedVersion is returned when the file's version is newer
// than this reader understands.
var ErrUnsupportedVersion = errors.New("renderedcache: unsupported cache version")

// ErrTruncated is returned when the file ends before a declared record
// is fully read.
var ErrTruncated = errors.New("renderedcache: truncated cache file")

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errTruncatedOrIO(err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errTruncatedOrIO(err)
	}
	return buf[0], nil
}

func readString(r io.Reader) (string, error) {
	length, err := readUint64(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errTruncatedOrIO(err)
	}
	return string(buf), nil
}

func errTruncatedOrIO(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return fmt.Errorf("renderedcache: io error: %w", err)
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func writeString(w io.Writer, s string) error {
	if err := writeUint64(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// Read loads the rendered object list from path. A missing file is not
// an error; it yields an empty list.
func Read(path string) (*object.List, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return object.NewList(), nil
		}
		return nil, fmt.Errorf("renderedcache: failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	if magic != magicNumber {
		return nil, ErrBadFormat
	}

	version, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	if version > currentVersion {
		return nil, ErrUnsupportedVersion
	}

	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}

	list := object.NewList()
	for i := uint64(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		typ, err := readString(r)
		if err != nil {
			return nil, err
		}
		json, err := readString(r)
		if err != nil {
			return nil, err
		}
		list.Add(&object.Rendered{ID: id, Type: typ, JSON: json})
	}

	return list, nil
}

func stringSize(s string) int64 {
	return 8 + int64(len(s))
}

func objectSize(obj *object.Rendered) int64 {
	return stringSize(obj.ID) + stringSize(obj.Type) + stringSize(obj.JSON)
}

// EstimateSize computes the worst-case byte size used to pre-allocate
// the cache file before writing: for every id present in either
// current or cached, the larger of the two record encodings (so
// retaining the cached copy on a partial failure still fits), plus
// every cached-only record.
func EstimateSize(current, cached *object.List) int64 {
	total := int64(headerSize) + 8 // header + record count

	for _, obj := range current.Objects() {
		size := objectSize(obj)
		if cachedObj := cached.Get(obj.ID); cachedObj != nil {
			if cachedSize := objectSize(cachedObj); cachedSize > size {
				size = cachedSize
			}
		}
		total += size
	}

	for _, obj := range cached.Objects() {
		if current.Get(obj.ID) == nil {
			total += objectSize(obj)
		}
	}

	return total
}

// renameRetryDelays are the backoffs between rename attempts, matching
// the original implementation's 10/20/30/40 second schedule.
var renameRetryDelays = []time.Duration{
	10 * time.Second, 20 * time.Second, 30 * time.Second, 40 * time.Second,
}

// Write persists the rendered object list to path using the atomic
// temp-then-rename protocol: the new content is written in full to a
// temporary file in path's directory, named by renameio rather than
// path+".tmp", and then renamed onto path; the write-and-rename is
// retried a few times to tolerate a reader that's briefly holding the
// file open.
// prior is the cache's previous content, used only to size the
// encoding buffer up front via EstimateSize; it may be nil.
func Write(path string, list, prior *object.List) error {
	if prior == nil {
		prior = object.NewList()
	}
	buf, err := encode(list, EstimateSize(list, prior))
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= len(renameRetryDelays); attempt++ {
		lastErr = renameio.WriteFile(path, buf, 0600)
		if lastErr == nil {
			return nil
		}
		if attempt < len(renameRetryDelays) {
			time.Sleep(renameRetryDelays[attempt])
		}
	}
	return fmt.Errorf("renderedcache: failed to replace cache file after retries: %w", lastErr)
}

func encode(list *object.List, sizeHint int64) ([]byte, error) {
	var buf []byte
	if sizeHint > 0 {
		buf = make([]byte, 0, sizeHint)
	}
	w := &growBuffer{buf: buf}

	if err := writeUint64(w, magicNumber); err != nil {
		return nil, err
	}
	if err := writeUint8(w, currentVersion); err != nil {
		return nil, err
	}

	objs := list.Objects()
	if err := writeUint64(w, uint64(len(objs))); err != nil {
		return nil, err
	}
	for _, obj := range objs {
		if err := writeString(w, obj.ID); err != nil {
			return nil, err
		}
		if err := writeString(w, obj.Type); err != nil {
			return nil, err
		}
		if err := writeString(w, obj.JSON); err != nil {
			return nil, err
		}
	}

	return w.buf, nil
}

// growBuffer is a minimal io.Writer over a growable byte slice, which
// encode starts from a slice pre-sized by Write's EstimateSize hint,
// without depending on bytes.Buffer's extra API surface.
type growBuffer struct {
	buf []byte
}

func (g *growBuffer) Write(p []byte) (int, error) {
	g.buf = append(g.buf, p...)
	return len(p), nil
}
