package phase

import (
	"testing"
	"time"
)

type stubClock struct {
	now time.Time
}

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stubClock) Now() time.Time          { return c.now }
func (c *stubClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestAdvanceIsOneDirectional(t *testing.T) {
	m := NewManagerWithClock(nil, nil, newStubClock().Now)
	if !m.Advance(Discovery, TriggerUserInput) {
		t.Fatal("forward advance rejected")
	}
	if m.Advance(Opening, TriggerUserInput) {
		t.Fatal("backward advance accepted")
	}
	if m.Advance(Discovery, TriggerUserInput) {
		t.Fatal("same-phase advance should be a no-op")
	}
	if m.Current() != Discovery {
		t.Fatalf("phase = %s", m.Current())
	}
	hist := m.History()
	if len(hist) != 1 || hist[0].From != Opening || hist[0].To != Discovery {
		t.Fatalf("history = %+v", hist)
	}
}

func TestEvaluateAdvancesOnRequiredFacts(t *testing.T) {
	m := NewManagerWithClock(nil, nil, newStubClock().Now)
	if m.Evaluate() {
		t.Fatal("advanced with no facts and no elapsed time")
	}
	m.Context().ObserveFact(FactCallerName, "Dana")
	if !m.Evaluate() {
		t.Fatal("did not advance once required fact present")
	}
	if m.Current() != Discovery {
		t.Fatalf("phase = %s", m.Current())
	}
	if tr := m.History()[0].Trigger; tr != TriggerAutomatic {
		t.Fatalf("trigger = %s", tr)
	}
}

func TestEvaluateAdvancesOnBlownBudget(t *testing.T) {
	clock := newStubClock()
	m := NewManagerWithClock(nil, nil, clock.Now)
	clock.Advance(time.Minute) // opening budget is 45s
	if !m.Evaluate() {
		t.Fatal("did not advance after budget elapsed")
	}
	if tr := m.History()[0].Trigger; tr != TriggerTimeElapsed {
		t.Fatalf("trigger = %s", tr)
	}
}

func TestEvaluateStopsAtClosing(t *testing.T) {
	clock := newStubClock()
	m := NewManagerWithClock(nil, nil, clock.Now)
	for i := 0; i < 10; i++ {
		clock.Advance(10 * time.Minute)
		m.Evaluate()
	}
	if m.Current() != Closing {
		t.Fatalf("phase = %s", m.Current())
	}
	if m.Evaluate() {
		t.Fatal("advanced past closing")
	}
}

func TestReset(t *testing.T) {
	m := NewManagerWithClock(nil, nil, newStubClock().Now)
	m.Context().ObserveFact(FactCallerName, "Dana")
	m.Advance(Qualification, TriggerUserInput)
	m.Reset()
	if m.Current() != Opening {
		t.Fatalf("phase after reset = %s", m.Current())
	}
	if m.Context().HasFact(FactCallerName) {
		t.Fatal("context survived reset")
	}
	if len(m.History()) != 0 {
		t.Fatal("history survived reset")
	}
}

func TestConfirmedFactsResistReExtraction(t *testing.T) {
	ctx := NewConversationContext()
	ctx.ObserveFact(FactCallerName, "Dana")
	f, _ := ctx.Fact(FactCallerName)
	if f.Confirmed {
		t.Fatal("single observation should not confirm")
	}

	// Repetition confirms.
	ctx.ObserveFact(FactCallerName, "Dana")
	f, _ = ctx.Fact(FactCallerName)
	if !f.Confirmed {
		t.Fatal("repetition should confirm")
	}

	// Silent re-extraction of a different value loses to a confirmed fact.
	ctx.ObserveFact(FactCallerName, "Dina")
	f, _ = ctx.Fact(FactCallerName)
	if f.Value != "Dana" {
		t.Fatalf("confirmed fact overwritten: %q", f.Value)
	}

	// Explicit correction wins.
	ctx.CorrectFact(FactCallerName, "Dina")
	f, _ = ctx.Fact(FactCallerName)
	if f.Value != "Dina" || !f.Confirmed {
		t.Fatalf("correction not applied: %+v", f)
	}
}

func TestCountersAreCapped(t *testing.T) {
	ctx := NewConversationContext()
	used := 0
	for i := 0; i < 5; i++ {
		if ctx.Use(CounterNameUsage) {
			used++
		}
	}
	if used != 3 {
		t.Fatalf("name usage allowed %d times, want 3", used)
	}
	if ctx.CanUse(CounterNameUsage) {
		t.Fatal("CanUse true past cap")
	}
	// Uncapped counters never refuse.
	for i := 0; i < 100; i++ {
		if !ctx.Use(CounterExchanges) {
			t.Fatal("uncapped counter refused")
		}
	}
	if ctx.Count(CounterExchanges) != 100 {
		t.Fatalf("exchange count = %d", ctx.Count(CounterExchanges))
	}
}

func TestHeuristicExtractor(t *testing.T) {
	ctx := NewConversationContext()
	ex := HeuristicExtractor{}

	ex.Extract("Hi, my name is Alex, calling from Meridian Software", ctx)
	if f, _ := ctx.Fact(FactCallerName); f.Value != "Alex" {
		t.Fatalf("name = %q", f.Value)
	}
	if f, _ := ctx.Fact(FactCompany); f.Value != "Meridian Software" {
		t.Fatalf("company = %q", f.Value)
	}

	ex.Extract("we need a better way to track inbound leads.", ctx)
	if !ctx.HasFact(FactNeed) {
		t.Fatal("need not extracted")
	}

	ex.Extract("honestly that's too expensive for us", ctx)
	if f, _ := ctx.Fact(FactObjection); f.Value != "too expensive" {
		t.Fatalf("objection = %q", f.Value)
	}

	// Correction path beats plain extraction.
	ex.Extract("my name is Alex", ctx) // confirms Alex
	ex.Extract("no, it's Sasha", ctx)
	if f, _ := ctx.Fact(FactCallerName); f.Value != "Sasha" || !f.Confirmed {
		t.Fatalf("correction failed: %+v", f)
	}
}
