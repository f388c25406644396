package app

import "sync"

// lazy builds a component on first use and memoizes the outcome, error included, so a
// dependency that failed to build reports the same failure to every caller.
type lazy[T any] struct {
	once  sync.Once
	mu    sync.Mutex
	val   T
	err   error
	built bool
}

func (l *lazy[T]) get(build func() (T, error)) (T, error) {
	l.once.Do(func() {
		val, err := build()
		l.mu.Lock()
		defer l.mu.Unlock()
		l.val, l.err, l.built = val, err, err == nil
	})
	return l.val, l.err
}

// peek returns the component only if it was built successfully. It never triggers a build.
func (l *lazy[T]) peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.built
}
