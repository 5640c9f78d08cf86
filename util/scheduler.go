package util

import (
	"sort"
	"sync"
	"time"
)

// Task is a handle to a single-shot deferred call.
type Task interface {
	// Cancel stops the task. It returns false if the task already ran or
	// was cancelled before; calling it repeatedly is safe.
	Cancel() bool
	// Pending reports whether the task is armed and has not run yet.
	Pending() bool
}

// Scheduler runs f once after d on a goroutine of its own choosing.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
}

// timerScheduler is backed by time.AfterFunc.
type timerScheduler struct{}

func NewScheduler() Scheduler {
	return timerScheduler{}
}

type timerTask struct {
	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

func (timerScheduler) AfterFunc(d time.Duration, f func()) Task {
	task := &timerTask{}
	task.mu.Lock()
	defer task.mu.Unlock()
	task.timer = time.AfterFunc(d, func() {
		task.mu.Lock()
		if task.done {
			task.mu.Unlock()
			return
		}
		task.done = true
		task.mu.Unlock()
		f()
	})
	return task
}

func (t *timerTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.timer.Stop()
	return true
}

func (t *timerTask) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

// ManualScheduler only runs tasks when Advance moves its clock past their
// deadline. Tasks run synchronously on the goroutine calling Advance.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	tasks []*manualTask
}

type manualTask struct {
	s    *ManualScheduler
	due  time.Duration
	seq  int
	f    func()
	done bool
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := &manualTask{s: m, due: m.now + d, seq: len(m.tasks), f: f}
	m.tasks = append(m.tasks, task)
	return task
}

// Advance moves the clock forward by d and runs every task that became due,
// earliest first. Tasks armed by a running task are honoured if they fall
// within the same window.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()
	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		next.done = true
		m.mu.Unlock()
		next.f()
	}
}

// Must be called with m.mu held
func (m *ManualScheduler) nextDue(limit time.Duration) *manualTask {
	var due []*manualTask
	for _, t := range m.tasks {
		if !t.done && t.due <= limit {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due == due[j].due {
			return due[i].seq < due[j].seq
		}
		return due[i].due < due[j].due
	})
	return due[0]
}

// Pending returns the number of armed tasks.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.done {
			n++
		}
	}
	return n
}

func (t *manualTask) Cancel() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *manualTask) Pending() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return !t.done
}
