package db

import (
	"strings"

	"github.com/teranos/samplegen/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database,
// typically a ledger write racing server shutdown.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// database/sql returns its own unwrapped error for this, hence the message match.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
