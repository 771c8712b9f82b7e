package journal

import (
	"context"
	"sort"
	"sync"
)

// MemoryJournal 进程内实现，未配置 Redis 时使用
type MemoryJournal struct {
	mu          sync.Mutex
	intents     map[string]string
	states      map[string]State
	blockhashes map[string]string
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		intents:     make(map[string]string),
		states:      make(map[string]State),
		blockhashes: make(map[string]string),
	}
}

func (m *MemoryJournal) Claim(_ context.Context, intentKey, signature string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	holder, ok := m.intents[intentKey]
	if !ok || holder == signature || m.states[holder].Replaceable() {
		m.intents[intentKey] = signature
		return signature, nil
	}
	return holder, nil
}

func (m *MemoryJournal) Track(_ context.Context, signature, blockhash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockhashes[signature] = blockhash
	return nil
}

func (m *MemoryJournal) Blockhash(_ context.Context, signature string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockhashes[signature], nil
}

func (m *MemoryJournal) MarkState(_ context.Context, signature string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[signature] = state
	return nil
}

func (m *MemoryJournal) State(_ context.Context, signature string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[signature], nil
}

func (m *MemoryJournal) Pending(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for sig, st := range m.states {
		if st.Pending() {
			out = append(out, sig)
		}
	}
	sort.Strings(out)
	return out, nil
}
