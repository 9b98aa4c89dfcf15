package store

import (
	"slices"
	"sync"
)

// Locker はキャンペーン単位の書き込みロックを提供します。
// 「キャンペーンを読む、変更する、書く」の一連の処理をこのロックで囲みます。
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker は Locker を生成します。
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock はキーのロックを取得し、解放関数を返します。
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// LockAll は複数のキーのロックをまとめて取得し、解放関数を返します。
// 重複を除いて昇順に取得するため、同時に呼んでもデッドロックしません。
func (l *Locker) LockAll(keys ...string) (unlock func()) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for _, key := range sorted {
		unlocks = append(unlocks, l.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
