//go:build windows

package mount

import "os"

// Windows exposes no block count through os.FileInfo; the logical size is the
// best available answer.
func fileAllocatedBytes(fileInfo os.FileInfo) (int64, bool) {
	if fileInfo == nil {
		return 0, false
	}
	return fileInfo.Size(), true
}
