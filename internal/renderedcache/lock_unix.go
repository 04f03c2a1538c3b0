//go:build !windows

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
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Sambruk/egilscim/internal/uuidutil"
)

func lockFilePath(canonicalCachePath string) string {
	name := uuidutil.Derive(canonicalCachePath)
	return filepath.Join(os.TempDir(), "egilscim-"+name+".lock")
}

// acquirePlatformLock tries to take an exclusive flock on a side-file
// named after the cache path, polling until timeout. On failure it
// removes the side-file (breaking a stale lock left by a process that
// was killed while holding it) and returns a no-op release.
func acquirePlatformLock(canonicalCachePath string, timeout time.Duration) func() {
	lockPath := lockFilePath(canonicalCachePath)

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return func() {}
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return func() {
				unix.Flock(int(f.Fd()), unix.LOCK_UN)
				f.Close()
			}
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Couldn't acquire in time: break the stale lock so the next
	// process doesn't inherit a stuck state, and proceed as though we
	// held it (§4.3).
	f.Close()
	os.Remove(lockPath)
	return func() {}
}
