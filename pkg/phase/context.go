package phase

import "sync"

// Fact is one extracted piece of interlocutor knowledge. Confirmed facts
// (e.g. a name the caller repeated) are sticky: silent re-extraction never
// overwrites them, only an explicit correction does.
type Fact struct {
	Value     string
	Confirmed bool
}

// ConversationContext is the mutable per-call state the phase manager owns.
// It is written only from the turn-processing flow.
type ConversationContext struct {
	mu       sync.Mutex
	facts    map[string]Fact
	counters map[string]int
	caps     map[string]int
}

// Counter names with per-call caps.
const (
	CounterNameUsage   = "name_usage"
	CounterSpecialMove = "special_move"
	CounterExchanges   = "exchanges"
)

func NewConversationContext() *ConversationContext {
	return &ConversationContext{
		facts:    make(map[string]Fact),
		counters: make(map[string]int),
		caps: map[string]int{
			CounterNameUsage:   3,
			CounterSpecialMove: 1,
		},
	}
}

// ObserveFact records an extracted value. If the same value is seen again
// the fact becomes confirmed. A different value only replaces an
// unconfirmed fact; confirmed facts require CorrectFact.
func (c *ConversationContext) ObserveFact(key, value string) {
	if value == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.facts[key]
	if !ok {
		c.facts[key] = Fact{Value: value}
		return
	}
	if existing.Value == value {
		existing.Confirmed = true
		c.facts[key] = existing
		return
	}
	if !existing.Confirmed {
		c.facts[key] = Fact{Value: value}
	}
}

// CorrectFact is the explicit-correction path: it overwrites even a
// confirmed fact and marks the replacement confirmed.
func (c *ConversationContext) CorrectFact(key, value string) {
	if value == "" {
		return
	}
	c.mu.Lock()
	c.facts[key] = Fact{Value: value, Confirmed: true}
	c.mu.Unlock()
}

func (c *ConversationContext) Fact(key string) (Fact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.facts[key]
	return f, ok
}

func (c *ConversationContext) HasFact(key string) bool {
	_, ok := c.Fact(key)
	return ok
}

// CanUse reports whether the named budgeted move still has headroom.
// Counters without a cap are always usable.
func (c *ConversationContext) CanUse(counter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cap, capped := c.caps[counter]
	if !capped {
		return true
	}
	return c.counters[counter] < cap
}

// Use increments the counter if the cap allows it. Counters only ever go up.
func (c *ConversationContext) Use(counter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cap, capped := c.caps[counter]; capped && c.counters[counter] >= cap {
		return false
	}
	c.counters[counter]++
	return true
}

func (c *ConversationContext) Count(counter string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[counter]
}
