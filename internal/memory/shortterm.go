package memory

import (
	"fmt"
	"strings"
	"sync"

	"siriuschat/internal/message"
)

const (
	defaultShortTermCapacity = 16
	defaultDiaryCapacity     = 12
)

// ShortTerm holds one source's recent conversation units plus the
// persona's diary entries.
type ShortTerm struct {
	mu            sync.Mutex
	units         []*message.MessageUnit
	diary         []diaryEntry
	capacity      int
	diaryCapacity int
}

type diaryEntry struct {
	when string
	text string
}

func NewShortTerm(capacity, diaryCapacity int) *ShortTerm {
	if capacity <= 0 {
		capacity = defaultShortTermCapacity
	}
	if diaryCapacity <= 0 {
		diaryCapacity = defaultDiaryCapacity
	}
	return &ShortTerm{capacity: capacity, diaryCapacity: diaryCapacity}
}

// Add records one unit. Consecutive units from the same user merge
// into the previous one; self and notice units always stand alone.
// When capacity is exceeded the oldest unit is dropped.
func (m *ShortTerm) Add(unit *message.MessageUnit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case unit.IsSelf || unit.IsNotice:
		m.units = append(m.units, unit)
	case len(m.units) > 0 && m.last().UserID == unit.UserID && !m.last().IsSelf && !m.last().IsNotice:
		m.last().Merge(unit)
	default:
		m.units = append(m.units, unit)
	}

	if len(m.units) > m.capacity {
		m.units = m.units[1:]
	}
}

func (m *ShortTerm) last() *message.MessageUnit {
	return m.units[len(m.units)-1]
}

// RecordDiary appends one diary entry, keeping only the most recent
// entries up to the diary capacity.
func (m *ShortTerm) RecordDiary(when, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diary = append(m.diary, diaryEntry{when: when, text: text})
	if len(m.diary) > m.diaryCapacity {
		m.diary = m.diary[len(m.diary)-m.diaryCapacity:]
	}
}

// Extend layers the diary and the remembered units onto a builder that
// already holds the system turn.
func (m *ShortTerm) Extend(b *message.MessageChainBuilder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.diary) > 0 {
		var sb strings.Builder
		for _, e := range m.diary {
			fmt.Fprintf(&sb, "[%s] %s\n", e.when, e.text)
		}
		if err := b.AppendSystem("以前发生的事情你写成了日记，这是你的日记内容：\n" + sb.String()); err != nil {
			return fmt.Errorf("extend chain with diary: %w", err)
		}
	}
	if len(m.units) > 0 {
		if err := b.AddUserUnits(m.units); err != nil {
			return fmt.Errorf("extend chain with memory: %w", err)
		}
	}
	return nil
}

// Units returns a snapshot of the remembered units.
func (m *ShortTerm) Units() []*message.MessageUnit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*message.MessageUnit, len(m.units))
	copy(out, m.units)
	return out
}

// Bank hands out one ShortTerm per source.
type Bank struct {
	mu            sync.Mutex
	sources       map[string]*ShortTerm
	capacity      int
	diaryCapacity int
}

func NewBank(capacity, diaryCapacity int) *Bank {
	return &Bank{
		sources:       make(map[string]*ShortTerm),
		capacity:      capacity,
		diaryCapacity: diaryCapacity,
	}
}

// ForSource returns the source's memory, creating it on first use.
func (b *Bank) ForSource(source string) *ShortTerm {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sources[source]
	if !ok {
		st = NewShortTerm(b.capacity, b.diaryCapacity)
		b.sources[source] = st
	}
	return st
}
