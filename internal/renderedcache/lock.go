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

package renderedcache

import (
	"path/filepath"
	"time"
)

// DefaultLockTimeout is how long Acquire waits before giving up and
// proceeding without the lock (see §4.3).
const DefaultLockTimeout = 30 * time.Second

// Lock is a cross-process advisory mutex guarding one cache file. Its
// name is derived from the cache path's canonicalised form so that two
// processes opening the same file by different spellings still share
// one lock.
//
// Acquire never returns an error: on timeout or any failure of the
// underlying primitive it proceeds as though the lock were held,
// because losing an uncoordinated race is preferable to skipping the
// sync entirely (§4.3). The real safety net is the atomic rename in
// cache.go.
type Lock struct {
	path    string
	timeout time.Duration
	release func()
}

// Acquire tries to lock the advisory mutex for path within timeout. It
// always returns a non-nil Lock; call Release when done with it.
func Acquire(path string, timeout time.Duration) *Lock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}
	l := &Lock{path: abs, timeout: timeout}
	l.release = acquirePlatformLock(abs, timeout)
	return l
}

// Release gives up the lock, if one was actually held.
func (l *Lock) Release() {
	if l.release != nil {
		l.release()
		l.release = nil
	}
}
