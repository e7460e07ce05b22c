package redisx

import "time"

const (
	// Satu checkout aktif per user: lock:checkout:{user_id} -> token
	KeyCheckoutLock = "lock:checkout:%s"

	// Cache discount rule: discount:{code as typed} -> rule json
	KeyDiscount = "discount:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLDiscount     = 5 * time.Minute
	TTLDedup        = 48 * time.Hour
	TTLCheckoutLock = 30 * time.Second
)
