// Package ids mints event identifiers, lays out the on-disk event
// directory structure, and sweeps old events for retention.
package ids

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"
)

const isoLayout = "2006-01-02T15:04:05Z"

// Now returns the current UTC wall-clock time.
func Now() time.Time {
	return time.Now().UTC()
}

// ISOUTC formats t as "YYYY-MM-DDTHH:MM:SSZ".
func ISOUTC(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseISOUTC parses a timestamp produced by ISOUTC.
func ParseISOUTC(s string) (time.Time, error) {
	return time.Parse(isoLayout, s)
}

// EventID mints "{YYYYMMDDTHHMMSSZ}_{camera_id}_fall_{NNNN}".
func EventID(cameraID string, seq int, ts time.Time) string {
	return fmt.Sprintf("%s_%s_fall_%04d", ts.UTC().Format("20060102T150405Z"), cameraID, seq)
}

// EventDir returns "{base}/{camera_id}/{YYYY}/{MM}/{DD}/{event_id}".
func EventDir(baseDir, cameraID, eventID string, ts time.Time) string {
	ts = ts.UTC()
	return filepath.Join(baseDir, cameraID,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		eventID,
	)
}

// EnsureDir creates dir (and parents) if missing.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// HostName returns the local hostname, or "unknown-host" if unavailable.
func HostName() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown-host"
	}
	return h
}

// ListEventDirs returns every "{base}/*/YYYY/MM/DD/eventId" leaf directory,
// sorted by modification time ascending (oldest first).
func ListEventDirs(baseDir string) ([]string, error) {
	cameraDirs, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []string
	for _, camera := range cameraDirs {
		if !camera.IsDir() {
			continue
		}
		years, err := os.ReadDir(filepath.Join(baseDir, camera.Name()))
		if err != nil {
			continue
		}
		for _, y := range years {
			if !y.IsDir() {
				continue
			}
			months, err := os.ReadDir(filepath.Join(baseDir, camera.Name(), y.Name()))
			if err != nil {
				continue
			}
			for _, m := range months {
				if !m.IsDir() {
					continue
				}
				days, err := os.ReadDir(filepath.Join(baseDir, camera.Name(), y.Name(), m.Name()))
				if err != nil {
					continue
				}
				for _, d := range days {
					if !d.IsDir() {
						continue
					}
					dayPath := filepath.Join(baseDir, camera.Name(), y.Name(), m.Name(), d.Name())
					events, err := os.ReadDir(dayPath)
					if err != nil {
						continue
					}
					for _, e := range events {
						if e.IsDir() {
							dirs = append(dirs, filepath.Join(dayPath, e.Name()))
						}
					}
				}
			}
		}
	}

	sort.Slice(dirs, func(i, j int) bool {
		ti := modTime(dirs[i])
		tj := modTime(dirs[j])
		return ti.Before(tj)
	})
	return dirs, nil
}

func modTime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

// RemoveDir deletes an event directory, ignoring errors (best effort).
func RemoveDir(dir string) {
	_ = os.RemoveAll(dir)
}

// DiskFreePercent reports the free-space percentage of the filesystem
// backing path. Linux-specific (statfs); the only boundary OS call in
// this codebase, see DESIGN.md.
func DiskFreePercent(path string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	if stat.Blocks == 0 {
		return 100, nil
	}
	free := float64(stat.Bavail) * float64(stat.Bsize)
	total := float64(stat.Blocks) * float64(stat.Bsize)
	return (free / total) * 100.0, nil
}

// EnforceRetention deletes event directories older than retentionDays,
// then keeps deleting the oldest remaining event directory while free
// disk space at baseDir is below minFreePct. All filesystem errors are
// swallowed — retention must never fail a save.
func EnforceRetention(baseDir string, retentionDays int, minFreePct float64) {
	if _, err := os.Stat(baseDir); err != nil {
		return
	}

	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	dirs, err := ListEventDirs(baseDir)
	if err != nil {
		return
	}
	for _, d := range dirs {
		if modTime(d).Before(cutoff) {
			RemoveDir(d)
		}
	}

	for {
		pct, err := DiskFreePercent(baseDir)
		if err != nil || pct >= minFreePct {
			return
		}
		dirs, err := ListEventDirs(baseDir)
		if err != nil || len(dirs) == 0 {
			return
		}
		RemoveDir(dirs[0])
	}
}
