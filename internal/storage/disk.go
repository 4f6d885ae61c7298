package storage

import (
	"os"
	"path/filepath"
	"sort"
)

// PathUsage is the on-disk size of one named storage path.
type PathUsage struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// DiskUsage returns the size of each named path, sorted by name, and their total. A path
// may be a file or a directory (summed recursively). Empty and missing paths count as 0.
func DiskUsage(paths map[string]string) ([]PathUsage, int64, error) {
	usage := make([]PathUsage, 0, len(paths))
	var total int64
	for name, p := range paths {
		n, err := pathSize(p)
		if err != nil {
			return nil, 0, err
		}
		usage = append(usage, PathUsage{Name: name, Path: p, Bytes: n})
		total += n
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].Name < usage[j].Name })
	return usage, total, nil
}

func pathSize(p string) (int64, error) {
	if p == "" {
		return 0, nil
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.Walk(p, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info != nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
