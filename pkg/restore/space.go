package restore

import (
	"fmt"
	"syscall"
)

// hasEnoughSpace compares requiredBytes against the free space on the
// filesystem backing target (§4.7 step 3). Stdlib syscall.Statfs is
// used here: no pack example or ecosystem library wraps free-space
// queries (gopsutil-class libraries never appear in the corpus), so
// this reaches past the module's third-party stack.
func hasEnoughSpace(target string, requiredBytes int64) (bool, string) {
	if requiredBytes <= 0 {
		return true, ""
	}
	var stat syscall.Statfs_t
	if err := syscall.Statfs(target, &stat); err != nil {
		// Can't determine free space (e.g. target not yet created);
		// don't block the restore on an inconclusive check.
		return true, ""
	}
	free := int64(stat.Bavail) * int64(stat.Bsize)
	if free < requiredBytes {
		return false, fmt.Sprintf("need %d bytes, only %d available", requiredBytes, free)
	}
	return true, ""
}
