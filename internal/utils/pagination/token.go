package pagination

import (
	"fmt"
	"time"
)

const timeFormat = time.RFC3339Nano // Use a precise time format

// CursorStep is added to the last seen timestamp so the next page starts strictly after it.
const CursorStep = time.Second

// EncodeSince formats a cursor timestamp for the "since" and "before" query parameters.
func EncodeSince(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// DecodeSince parses a cursor produced by EncodeSince.
func DecodeSince(cursor string) (time.Time, error) {
	t, err := time.Parse(timeFormat, cursor)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid pagination cursor %q: %w", cursor, err)
	}
	return t, nil
}

// NextSince returns the cursor for the page following one whose last item was created at last.
// The API's own pagination is unreliable, so each page restarts from the last timestamp.
func NextSince(last time.Time) time.Time {
	return last.Add(CursorStep)
}
