package datadir

import (
	"fmt"
	"regexp"
)

var clientIDRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateClientID checks that id is safe to use as a client key. Client ids
// prefix credential keys, so ':' is never allowed.
func ValidateClientID(id string) error {
	if !clientIDRegexp.MatchString(id) {
		return fmt.Errorf("invalid client id %q: must match %s", id, clientIDRegexp)
	}
	return nil
}
