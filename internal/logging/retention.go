package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneRunLogs deletes files in dir matching pattern whose modification time is
// older than retentionDays, never touching the file named by keep. A
// retentionDays value of 0 disables pruning. It returns the number of files removed.
func PruneRunLogs(logger *slog.Logger, dir, pattern, keep string, retentionDays int) int {
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0
	}
	keepAbs, _ := filepath.Abs(keep)
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && abs == keepAbs {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions on paths.log_dir"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}
