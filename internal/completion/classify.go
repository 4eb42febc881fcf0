package completion

import "time"

// insertFreshness is how long a recorded keystroke is considered the
// cause of a subsequent text-change event.
const insertFreshness = 500 * time.Millisecond

// LastInsert records the most recent character typed in insert mode.
type LastInsert struct {
	// Character is the typed character.
	Character string
	// Timestamp is when it was typed.
	Timestamp time.Time
}

// Classifier tracks raw keystroke and mode timing so text-change
// events can be attributed to user typing or to editor-induced
// changes. It carries no locking; the coordinator serializes access.
type Classifier struct {
	lastInsert *LastInsert

	insertCharAt  time.Time
	insertLeaveAt time.Time

	now func() time.Time
}

// NewClassifier creates a classifier using the real clock.
func NewClassifier() *Classifier {
	return &Classifier{now: time.Now}
}

// SetClock overrides the clock; tests use this to control freshness.
func (c *Classifier) SetClock(now func() time.Time) {
	c.now = now
}

// RecordInsertChar records an InsertCharPre event.
func (c *Classifier) RecordInsertChar(ch string) {
	t := c.now()
	c.lastInsert = &LastInsert{Character: ch, Timestamp: t}
	c.insertCharAt = t
}

// RecordInsertLeave records an InsertLeave event.
func (c *Classifier) RecordInsertLeave() {
	c.insertLeaveAt = c.now()
}

// ClearLastInsert drops the recorded keystroke.
func (c *Classifier) ClearLastInsert() {
	c.lastInsert = nil
}

// LatestInsert returns the recorded keystroke iff it is fresh.
func (c *Classifier) LatestInsert() *LastInsert {
	li := c.lastInsert
	if li == nil {
		return nil
	}
	if c.now().Sub(li.Timestamp) > insertFreshness {
		return nil
	}
	return li
}

// LatestInsertChar returns the fresh keystroke's character, or "".
func (c *Classifier) LatestInsertChar() string {
	if li := c.LatestInsert(); li != nil {
		return li.Character
	}
	return ""
}

// InsertCharAt returns the time of the last InsertCharPre event.
func (c *Classifier) InsertCharAt() time.Time {
	return c.insertCharAt
}

// InsertLeaveAt returns the time of the last InsertLeave event.
func (c *Classifier) InsertLeaveAt() time.Time {
	return c.insertLeaveAt
}
