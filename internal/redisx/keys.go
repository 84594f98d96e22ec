package redisx

import "time"

const (
	// Session state: hash session:{session_id}, one field per substructure
	// (cart, checkout, express, user, order, messages).
	KeySession = "session:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// One final-step payment per session at a time: checkout:{session_id}
	KeyCheckoutLock = "checkout:%s"
)

var (
	TTLSession = 14 * 24 * time.Hour
	TTLDedup   = 48 * time.Hour

	TTLCheckoutLock = 2 * time.Minute
)
