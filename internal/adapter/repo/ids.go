package repo

import (
	"github.com/google/uuid"
)

// validID reports whether id can name a stored job. Record and lock file
// names are derived from the id, so anything that is not a canonical UUID is
// treated as absent.
func validID(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.String() == id
}
