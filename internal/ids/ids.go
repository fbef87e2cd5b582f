// Package ids generates identifiers for stored entities.
package ids

import "github.com/oklog/ulid/v2"

// New returns a ULID string. Identifiers sort lexicographically by creation time,
// which lets the stores order rows without a separate sequence.
func New() string {
	return ulid.Make().String()
}
