// Package scheduler queues follow-up ingestion tasks for origins discovered
// during a visit.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"ingot/internal/loader"
)

// Task is one queued ingestion request.
type Task struct {
	Type  string
	URL   string
	Extra map[string]string
}

// taskKey builds a stable identity for a task so equivalent requests
// coalesce. Extra parameters are folded into the key in sorted order.
func taskKey(taskType, url string, extra map[string]string) string {
	var sb strings.Builder
	sb.WriteString(taskType)
	sb.WriteByte('\x00')
	sb.WriteString(url)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "\x00%s=%s", k, extra[k])
	}
	return sb.String()
}

// MemoryScheduler keeps the task queue in process memory. Useful for tests
// and single-run ingestions where discovered origins are drained by the same
// process.
type MemoryScheduler struct {
	mu    sync.Mutex
	seen  map[string]bool
	tasks []Task
}

var _ loader.Scheduler = (*MemoryScheduler)(nil)

// NewMemoryScheduler creates an empty MemoryScheduler.
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{seen: make(map[string]bool)}
}

func (s *MemoryScheduler) CreateTask(ctx context.Context, taskType, url string, extra map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := taskKey(taskType, url, extra)
	if s.seen[key] {
		return nil
	}
	s.seen[key] = true
	s.tasks = append(s.tasks, Task{Type: taskType, URL: url, Extra: extra})
	return nil
}

// Tasks returns the queued tasks in creation order.
func (s *MemoryScheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}
