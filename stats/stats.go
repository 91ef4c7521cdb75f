package stats

import (
	"sort"
	"sync"
	"time"
)

type EventType string

const (
	EventTypeScanned EventType = "scanned"
	EventTypeFetched EventType = "fetched"
	EventTypeDecoded EventType = "decoded"
	EventTypeSkipped EventType = "skipped"
	EventTypeIssue   EventType = "issue"
	EventTypeMatched EventType = "matched"
	EventTypeError   EventType = "error"
)

type Event struct {
	Type   EventType
	UID    uint32
	Err    error
	Detail string
}

type Summary struct {
	Scanned   int
	Fetched   int
	Decoded   int
	Skipped   int
	Issues    int
	// Matched counts distinct messages assigned to at least one client.
	Matched   int
	Errors    int
	LastError error
	Duration  time.Duration
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"fetched", s.Fetched,
		"decoded", s.Decoded,
		"skipped", s.Skipped,
		"issues", s.Issues,
		"matched", s.Matched,
		"errors", s.Errors,
	}
	if s.Duration > 0 {
		attrs = append(attrs, "duration", s.Duration)
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector counts events of one monitoring run. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	summary Summary
	started time.Time
}

func NewCollector() *Collector {
	return &Collector{started: time.Now()}
}

func (c *Collector) Emit(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeFetched:
		c.summary.Fetched++
	case EventTypeDecoded:
		c.summary.Decoded++
	case EventTypeSkipped:
		c.summary.Skipped++
	case EventTypeIssue:
		c.summary.Issues++
	case EventTypeMatched:
		c.summary.Matched++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	summary.Duration = time.Since(c.started)
	c.mu.Unlock()
	return summary
}

// Count is one entry of a frequency table.
type Count struct {
	Key   string
	Value int
}

// Top returns the limit most frequent keys of m, ties broken alphabetically.
func Top(m map[string]int, limit int) []Count {
	pairs := make([]Count, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Count{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	if limit >= 0 && limit < len(pairs) {
		pairs = pairs[:limit]
	}
	return pairs
}
