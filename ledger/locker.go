package ledger

import (
	"context"
	"sync"
)

// Locker provides mutual exclusion per balance key. Lock blocks until the key
// is free or ctx is done; the returned unlock is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker. Entries are reference counted and
// dropped once no goroutine holds or waits for the key.
type KeyedMutex struct {
	mu   sync.Mutex
	keys map[string]*keyEntry
}

type keyEntry struct {
	slot chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{keys: make(map[string]*keyEntry)}
}

func (km *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	km.mu.Lock()
	e, ok := km.keys[key]
	if !ok {
		e = &keyEntry{slot: make(chan struct{}, 1)}
		km.keys[key] = e
	}
	e.refs++
	km.mu.Unlock()

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		km.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			km.release(key, e)
		})
	}, nil
}

func (km *KeyedMutex) release(key string, e *keyEntry) {
	km.mu.Lock()
	defer km.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(km.keys, key)
	}
}

// held counts tracked keys; used by tests.
func (km *KeyedMutex) held() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.keys)
}
