package completion

import (
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// recencyTTL bounds how long an accepted word keeps boosting ranks.
const recencyTTL = 30 * time.Minute

// Recency maps (buffer, word) to the last time the word was accepted.
// Writes are append-only and ordering-insensitive; sources read it to
// boost scores for recently used words.
type Recency struct {
	cache *ttlcache.Cache[string, time.Time]
}

// NewRecency creates a recency map with TTL expiry. Call Stop when done.
func NewRecency() *Recency {
	c := ttlcache.New[string, time.Time](
		ttlcache.WithTTL[string, time.Time](recencyTTL),
	)
	go c.Start()
	return &Recency{cache: c}
}

// Stop halts the expiry loop.
func (r *Recency) Stop() {
	r.cache.Stop()
}

// Touch records that word was accepted in buffer bufnr now.
func (r *Recency) Touch(bufnr int, word string) {
	if word == "" {
		return
	}
	r.cache.Set(recencyKey(bufnr, word), time.Now(), ttlcache.DefaultTTL)
}

// LastSeen returns when word was last accepted in buffer bufnr.
func (r *Recency) LastSeen(bufnr int, word string) (time.Time, bool) {
	item := r.cache.Get(recencyKey(bufnr, word))
	if item == nil {
		return time.Time{}, false
	}
	return item.Value(), true
}

// Bonus converts recency into a rank bonus: full weight for an accept
// within the last minute, decaying to zero at the TTL horizon.
func (r *Recency) Bonus(bufnr int, word string) int {
	seen, ok := r.LastSeen(bufnr, word)
	if !ok {
		return 0
	}
	age := time.Since(seen)
	switch {
	case age < time.Minute:
		return 60
	case age < 5*time.Minute:
		return 30
	case age < recencyTTL:
		return 10
	default:
		return 0
	}
}

func recencyKey(bufnr int, word string) string {
	return strconv.Itoa(bufnr) + ":" + word
}
