package selection

import (
	"io/fs"
	"os"
	"path/filepath"
)

// EffectivePaths is the result of walking every include root once and
// classifying each entry against the selection predicate (§4.2).
type EffectivePaths struct {
	Included []string
	Excluded []string
}

// BackupSizeEstimate summarizes a local traversal without invoking the
// engine (§4.2 estimate_backup_size).
type BackupSizeEstimate struct {
	TotalSize      int64
	FileCount      int
	DirectoryCount int
}

// GetEffectivePaths walks every include-root directory once, pruning
// directories whose absolute path is itself an explicit exclude path,
// and classifies every remaining file by ShouldIncludeFile. Unreadable
// entries are skipped silently, per §4.2 "Failure modes".
func (fs_ *FileSelection) GetEffectivePaths() EffectivePaths {
	fs_.mu.Lock()
	fs_.compile()
	roots := sortedKeys(fs_.includePaths)
	fs_.mu.Unlock()

	var result EffectivePaths
	seen := 0

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable entry: skip silently
			}
			if d.IsDir() {
				fs_.mu.Lock()
				_, pruned := fs_.excludePaths[clean(path)]
				fs_.mu.Unlock()
				if pruned && path != root {
					return filepath.SkipDir
				}
				return nil
			}

			seen++
			if fs_.Tracker != nil && seen%progressInterval == 0 {
				fs_.Tracker.Track(seen)
			}

			fs_.mu.Lock()
			include := fs_.shouldIncludeLocked(clean(path))
			fs_.mu.Unlock()
			if include {
				result.Included = append(result.Included, path)
			} else {
				result.Excluded = append(result.Excluded, path)
			}
			return nil
		})
	}
	return result
}

// EstimateBackupSize walks the same roots as GetEffectivePaths, summing
// the size of every included file and counting directories entered.
func (fs_ *FileSelection) EstimateBackupSize() BackupSizeEstimate {
	fs_.mu.Lock()
	fs_.compile()
	roots := sortedKeys(fs_.includePaths)
	fs_.mu.Unlock()

	var estimate BackupSizeEstimate
	seen := 0

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				fs_.mu.Lock()
				_, pruned := fs_.excludePaths[clean(path)]
				fs_.mu.Unlock()
				if pruned && path != root {
					return filepath.SkipDir
				}
				estimate.DirectoryCount++
				return nil
			}

			seen++
			if fs_.Tracker != nil && seen%progressInterval == 0 {
				fs_.Tracker.Track(seen)
			}

			fs_.mu.Lock()
			include := fs_.shouldIncludeLocked(clean(path))
			fs_.mu.Unlock()
			if !include {
				return nil
			}
			entryInfo, err := d.Info()
			if err != nil {
				return nil // unreadable: counted only if accessible
			}
			estimate.TotalSize += entryInfo.Size()
			estimate.FileCount++
			return nil
		})
	}
	return estimate
}
