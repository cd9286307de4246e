//go:build windows

package storage

import "golang.org/x/sys/windows"

func freeBytes(dir string) (int64, bool) {
	pathPtr, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, false
	}

	var free uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &free, nil, nil); err != nil {
		return 0, false
	}
	return int64(free), true
}
