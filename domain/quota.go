package domain

import (
	"fmt"
	"time"
)

// DefaultDailyLimit is the number of messages an identity may send per UTC day.
const DefaultDailyLimit = 3

// Identity is an opaque key used for quota accounting, not authentication.
type Identity string

// DayBucket is a UTC calendar date formatted as YYYY-MM-DD.
type DayBucket string

func DayOf(t time.Time) DayBucket {
	return DayBucket(t.UTC().Format(time.DateOnly))
}

// QuotaKey addresses one (identity, day) counter.
type QuotaKey struct {
	Identity Identity
	Day      DayBucket
}

func NewQuotaKey(identity Identity, at time.Time) QuotaKey {
	return QuotaKey{Identity: identity, Day: DayOf(at)}
}

// String renders the key as "{identity}_{date}".
func (k QuotaKey) String() string {
	return fmt.Sprintf("%s_%s", k.Identity, k.Day)
}

// QuotaRecord is what the quota store persists for a key.
type QuotaRecord struct {
	Identity Identity  `cbor:"identity"`
	Day      DayBucket `cbor:"day"`
	Count    int       `cbor:"count"`
}

// QuotaStatus is the outcome of a rate limit check.
type QuotaStatus struct {
	CanSend   bool
	Used      int
	Remaining int
	ResetAt   time.Time
}

func NewQuotaStatus(used, limit int, now time.Time) QuotaStatus {
	return QuotaStatus{
		CanSend:   used < limit,
		Used:      used,
		Remaining: max(0, limit-used),
		ResetAt:   NextReset(now),
	}
}

// NextReset returns midnight UTC following t.
func NextReset(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}
