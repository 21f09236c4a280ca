//go:build !windows

package mount

import (
	"os"
	"syscall"
)

// fileAllocatedBytes reports how many bytes of the file are backed by disk
// blocks. Sparse regions btfs has not filled yet are not counted.
func fileAllocatedBytes(fileInfo os.FileInfo) (int64, bool) {
	if fileInfo == nil {
		return 0, false
	}
	stat, ok := fileInfo.Sys().(*syscall.Stat_t)
	if !ok || stat == nil {
		return 0, false
	}
	return int64(stat.Blocks) * 512, true
}
