package assets

import (
	"fmt"
	"sync"

	"siro-hitl/client/internal/async"
)

// MemoryResolver serves assets registered in memory. It can be told to fail
// locates or loads, or to hold loads pending, which drives retry and
// cancellation paths.
type MemoryResolver struct {
	mu       sync.Mutex
	assets   map[string]Asset
	failures map[string]int
	unreach  map[string]int
	locates  map[string]int
	held     map[string]bool
	pending  map[string][]*async.Future[Asset]
	loads    map[string]int
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{
		assets:   make(map[string]Asset),
		failures: make(map[string]int),
		unreach:  make(map[string]int),
		locates:  make(map[string]int),
		held:     make(map[string]bool),
		pending:  make(map[string][]*async.Future[Asset]),
		loads:    make(map[string]int),
	}
}

// Add registers an asset under address.
func (m *MemoryResolver) Add(address string, bones ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[address] = Asset{Address: address, Bones: bones}
}

// FailNext makes the next n loads of address fail.
func (m *MemoryResolver) FailNext(address string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[address] = n
}

// FailLocateNext makes the next n locates of address return an error, as an
// unreachable asset server would.
func (m *MemoryResolver) FailLocateNext(address string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreach[address] = n
}

// Hold keeps loads of address pending until Release is called.
func (m *MemoryResolver) Hold(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[address] = true
}

// Release resolves every held load of address.
func (m *MemoryResolver) Release(address string) {
	m.mu.Lock()
	delete(m.held, address)
	waiting := m.pending[address]
	delete(m.pending, address)
	asset, ok := m.assets[address]
	m.mu.Unlock()
	for _, f := range waiting {
		if ok {
			f.Resolve(asset, nil)
		} else {
			f.Resolve(Asset{}, fmt.Errorf("load %s: %w", address, ErrNotFound))
		}
	}
}

// Loads reports how many loads of address were started.
func (m *MemoryResolver) Loads(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads[address]
}

// Locates reports how many locates of address were started.
func (m *MemoryResolver) Locates(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locates[address]
}

func (m *MemoryResolver) Locate(address string) async.Operation[bool] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locates[address]++
	if m.unreach[address] > 0 {
		m.unreach[address]--
		return async.Failed[bool](fmt.Errorf("locate %s: injected failure", address))
	}
	_, ok := m.assets[address]
	return async.Completed(ok)
}

func (m *MemoryResolver) Load(address string) async.Operation[Asset] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads[address]++
	if m.failures[address] > 0 {
		m.failures[address]--
		return async.Failed[Asset](fmt.Errorf("load %s: injected failure", address))
	}
	if m.held[address] {
		f := async.NewFuture[Asset](nil)
		m.pending[address] = append(m.pending[address], f)
		return f
	}
	asset, ok := m.assets[address]
	if !ok {
		return async.Failed[Asset](fmt.Errorf("load %s: %w", address, ErrNotFound))
	}
	return async.Completed(asset)
}
