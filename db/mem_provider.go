package db

import (
	"bytes"
	"sort"
	"sync"

	"github.com/mezonai/blockfs/errx"
)

// MemProvider implements Provider on an in-process map. It backs the memory
// block store variant and tests. Writes are "durable" only for the life of
// the process; there is nothing to reopen, so there is no open mode.
type MemProvider struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemProvider creates an empty in-memory provider.
func NewMemProvider() Provider {
	return &MemProvider{data: make(map[string][]byte)}
}

func (p *MemProvider) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, errx.New(errx.CodeIO, "catalog is closed")
	}
	v, ok := p.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (p *MemProvider) Put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errx.New(errx.CodeIO, "catalog is closed")
	}
	p.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (p *MemProvider) Delete(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errx.New(errx.CodeIO, "catalog is closed")
	}
	delete(p.data, string(key))
	return nil
}

func (p *MemProvider) Has(key []byte) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false, errx.New(errx.CodeIO, "catalog is closed")
	}
	_, ok := p.data[string(key)]
	return ok, nil
}

func (p *MemProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return errx.New(errx.CodeIO, "catalog is closed")
	}
	// Snapshot matching keys so the callback may mutate the provider.
	keys := make([]string, 0, len(p.data))
	for k := range p.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make([][]byte, len(keys))
	for i, k := range keys {
		snapshot[i] = append([]byte(nil), p.data[k]...)
	}
	p.mu.RUnlock()

	for i, k := range keys {
		if !callback([]byte(k), snapshot[i]) {
			break
		}
	}
	return nil
}

func (p *MemProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
