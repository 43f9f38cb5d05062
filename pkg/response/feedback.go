package response

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const feedbackCap = 50

// FeedbackEntry records one turn's outcome for a voice.
type FeedbackEntry struct {
	Won   bool
	Flags []Flag
}

// FeedbackLog is a bounded per-voice history of wins, losses, and critic
// flags. It only biases future prompt framing; nothing is trained on it.
type FeedbackLog struct {
	mu      sync.Mutex
	entries map[Voice][]FeedbackEntry
}

func NewFeedbackLog() *FeedbackLog {
	return &FeedbackLog{entries: make(map[Voice][]FeedbackEntry)}
}

// Record appends an outcome, dropping the oldest entry past the cap.
func (l *FeedbackLog) Record(voice Voice, entry FeedbackEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := append(l.entries[voice], entry)
	if len(list) > feedbackCap {
		list = list[len(list)-feedbackCap:]
	}
	l.entries[voice] = list
}

// Entries returns a copy of one voice's history, oldest first.
func (l *FeedbackLog) Entries(voice Voice) []FeedbackEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FeedbackEntry, len(l.entries[voice]))
	copy(out, l.entries[voice])
	return out
}

// PromptHint summarizes the voice's recent failures as one prompt line, or
// "" when there is nothing worth saying.
func (l *FeedbackLog) PromptHint(voice Voice, lastN int) string {
	l.mu.Lock()
	list := l.entries[voice]
	if len(list) > lastN {
		list = list[len(list)-lastN:]
	}
	counts := map[Flag]int{}
	for _, e := range list {
		for _, f := range e.Flags {
			counts[f]++
		}
	}
	l.mu.Unlock()

	if len(counts) == 0 {
		return ""
	}
	flags := make([]Flag, 0, len(counts))
	for f := range counts {
		flags = append(flags, f)
	}
	sort.Slice(flags, func(i, j int) bool {
		if counts[flags[i]] != counts[flags[j]] {
			return counts[flags[i]] > counts[flags[j]]
		}
		return flags[i] < flags[j]
	})
	if len(flags) > 3 {
		flags = flags[:3]
	}
	names := make([]string, len(flags))
	for i, f := range flags {
		names[i] = string(f)
	}
	return fmt.Sprintf("Your last %d turns kept failing on: %s. Avoid those patterns.", lastN, strings.Join(names, ", "))
}
