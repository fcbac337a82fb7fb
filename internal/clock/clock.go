// Package clock abstracts time sources so runs and archives are
// testable with fixed clocks.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}
