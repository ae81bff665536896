package sqlinline

import (
	"regexp"
	"strings"
	"testing"
)

var markerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestQueriesCarryUniqueMarkers(t *testing.T) {
	queries := map[string]string{
		"QCreateJobsTable":       QCreateJobsTable,
		"QCreateJobsStatusIndex": QCreateJobsStatusIndex,
		"QInsertJob":             QInsertJob,
		"QSelectJob":             QSelectJob,
		"QSelectJobForUpdate":    QSelectJobForUpdate,
		"QUpdateJob":             QUpdateJob,
		"QDeleteJob":             QDeleteJob,
		"QListJobIDs":            QListJobIDs,
	}

	seen := make(map[string]string, len(queries))
	for name, q := range queries {
		first := strings.TrimSpace(strings.SplitN(strings.TrimSpace(q), "\n", 2)[0])
		if !markerPattern.MatchString(first) {
			t.Errorf("%s: first line %q is not a valid marker", name, first)
			continue
		}
		if prev, dup := seen[first]; dup {
			t.Errorf("%s reuses marker of %s", name, prev)
		}
		seen[first] = name
	}
}
