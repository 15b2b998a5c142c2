//go:build debug

// Package debug provides assertions that compile away in non-debug builds.
package debug

import (
	"fmt"
	"sync"
)

func ON() bool { return true }

func Assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
	}
}

func AssertFunc(f func() bool, args ...any) { Assert(f(), args...) }

func AssertNoErr(err error) {
	if err != nil {
		panic("assertion failed: " + err.Error())
	}
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

// AssertMutexLocked and friends are best-effort: sync.Mutex exposes no
// "is locked" query, so these only catch misuse surfaced via TryLock.
func AssertMutexLocked(m *sync.Mutex) {
	acquired := m.TryLock()
	if acquired {
		m.Unlock()
	}
	Assert(!acquired, "mutex must be held")
}

func AssertRWMutexLocked(m *sync.RWMutex) {
	acquired := m.TryLock()
	if acquired {
		m.Unlock()
	}
	Assert(!acquired, "rwmutex must be held for writing")
}

func AssertRWMutexRLocked(m *sync.RWMutex) {
	acquired := m.TryLock()
	if acquired {
		m.Unlock()
	}
	Assert(!acquired, "rwmutex must be held for reading")
}
