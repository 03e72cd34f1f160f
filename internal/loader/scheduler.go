package loader

import "context"

// Scheduler enqueues ingestion tasks for other origins discovered during a
// visit (VCS submodules). CreateTask must be idempotent on
// (taskType, url, extra): requesting a task equivalent to one already
// pending or complete creates no duplicate. Cycle safety of recursive
// origin discovery rests entirely on this property — a submodule pointing
// back at the origin currently being visited terminates the recursion
// because its task already exists.
type Scheduler interface {
	CreateTask(ctx context.Context, taskType, url string, extra map[string]string) error
}
