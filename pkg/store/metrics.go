package store

import (
	"io/fs"
	"path/filepath"

	"ticketchat/pkg/telemetry"
)

// RefreshDiskUsage walks the database directory and updates the disk-usage
// gauge. Best-effort: walk errors are skipped, a partial total is still
// better than none.
func (s *Store) RefreshDiskUsage() uint64 {
	if s == nil || s.path == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(s.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	telemetry.StoreDiskUsage.Set(float64(total))
	return total
}
