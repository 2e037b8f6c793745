package fulfillment

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var pinSpace = big.NewInt(10000)

// RandomPin draws a 4-digit code from the 10,000-code keyspace. Collisions
// against already-issued PINs are expected to be rare at event volume, but
// the partial unique index on order_items.pin_code is the actual
// guarantee; callers retry on conflict.
func RandomPin() string {
	n, err := rand.Int(rand.Reader, pinSpace)
	if err != nil {
		// crypto/rand failing means the process has no entropy source at
		// all; nothing sensible to do but stop.
		panic(fmt.Sprintf("pin generation: %v", err))
	}
	return fmt.Sprintf("%04d", n.Int64())
}
