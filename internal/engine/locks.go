package engine

import (
	"strconv"
	"sync"
)

// entityLocks hands out one exclusive mutex per entity key. Operations that
// touch a market and a ledger account acquire the market lock first, then the
// account lock, so concurrent operations on overlapping entities serialize
// without deadlocking. Mutexes are retained for the life of the process; the
// set is bounded by the number of markets and owners.
type entityLocks struct {
	locks sync.Map // key -> *sync.Mutex
}

func newEntityLocks() *entityLocks {
	return &entityLocks{}
}

// lock acquires the mutex for key and returns its unlock function.
func (l *entityLocks) lock(key string) func() {
	mu, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func marketKey(id int64) string    { return "market:" + strconv.FormatInt(id, 10) }
func ownerKey(owner string) string { return "owner:" + owner }
