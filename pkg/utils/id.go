package utils

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropy is shared so codes issued within the same millisecond still sort
// in issue order.
var entropy = &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)}

// GenerateCode returns prefix_ULID. Codes sort by issue time.
func GenerateCode(prefix string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return prefix + "_" + id.String()
}

// BillCode returns a new bill code.
func BillCode() string {
	return GenerateCode("BILL")
}
