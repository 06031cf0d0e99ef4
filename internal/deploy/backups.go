package deploy

import (
	"sort"
	"strings"
	"time"
)

// Backup is a timestamped copy of the remote directory.
type Backup struct {
	Path    string
	Created time.Time
}

// ParseBackups keeps the lines of a backup listing that carry a valid
// timestamp suffix after prefix, newest first.
func ParseBackups(listing, prefix string) []Backup {
	var backups []Backup
	for _, line := range strings.Split(listing, "\n") {
		line = strings.TrimRight(strings.TrimSpace(line), "/")
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		created, err := time.Parse(BackupTimeLayout, strings.TrimPrefix(line, prefix))
		if err != nil {
			continue
		}
		backups = append(backups, Backup{Path: line, Created: created})
	}
	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].Created.Equal(backups[j].Created) {
			return backups[i].Path > backups[j].Path
		}
		return backups[i].Created.After(backups[j].Created)
	})
	return backups
}

// ExpiredBackups returns the backups beyond the keep most recent, oldest
// last. Entries without a parseable timestamp are never selected.
func ExpiredBackups(listing, prefix string, keep int) []Backup {
	backups := ParseBackups(listing, prefix)
	if keep < 0 {
		keep = 0
	}
	if len(backups) <= keep {
		return nil
	}
	return backups[keep:]
}

// IsActive reports whether systemctl output marks the unit active. Case and
// surrounding whitespace are ignored, and only the whole word counts, so
// "inactive" is not active.
func IsActive(output string) bool {
	for _, field := range strings.Fields(strings.ToLower(output)) {
		if field == "active" {
			return true
		}
	}
	return false
}
