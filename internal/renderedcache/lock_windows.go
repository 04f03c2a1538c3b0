//go:build windows

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

	"golang.org/x/sys/windows"

	"github.com/Sambruk/egilscim/internal/uuidutil"
)

func lockFilePath(canonicalCachePath string) string {
	name := uuidutil.Derive(canonicalCachePath)
	return filepath.Join(os.TempDir(), "egilscim-"+name+".lock")
}

// acquirePlatformLock mirrors lock_unix.go's protocol using
// LockFileEx instead of flock(2).
func acquirePlatformLock(canonicalCachePath string, timeout time.Duration) func() {
	lockPath := lockFilePath(canonicalCachePath)

	handle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(lockPath),
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_ALWAYS,
		windows.FILE_ATTRIBUTE_NORMAL,
		0)
	if err != nil {
		return func() {}
	}

	var overlapped windows.Overlapped
	deadline := time.Now().Add(timeout)
	for {
		err := windows.LockFileEx(handle,
			windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
			0, 1, 0, &overlapped)
		if err == nil {
			return func() {
				windows.UnlockFileEx(handle, 0, 1, 0, &overlapped)
				windows.CloseHandle(handle)
			}
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	windows.CloseHandle(handle)
	os.Remove(lockPath)
	return func() {}
}
