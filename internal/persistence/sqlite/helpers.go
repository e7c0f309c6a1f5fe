package sqlite

import (
	"time"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
)

// wrapCommit turns a transaction Commit error into the cerr taxonomy
// without turning a nil commit into a non-nil wrapped error.
func wrapCommit(op string, err error) error {
	if err == nil {
		return nil
	}
	return cerr.Wrap(op, cerr.KindFatal, err)
}

// timeFormat is the fixed RFC3339Nano layout every timestamp column uses,
// so lexical and chronological ordering agree for ORDER BY queries.
const timeFormat = time.RFC3339Nano

func mustParseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
