package loader

import (
	"fmt"

	"ingot/internal/model"
)

// Thresholds configures when the buffering store spills to the next layer.
// Counts are per object type; ContentBytes bounds the cumulative declared
// length of queued contents and is only checked when the content count
// threshold was not already hit.
type Thresholds struct {
	Content      int
	Directory    int
	Revision     int
	Release      int
	ContentBytes int64
}

// DefaultThresholds returns the batching limits used in production.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Content:      10000,
		Directory:    25000,
		Revision:     100000,
		Release:      100000,
		ContentBytes: 100 * 1024 * 1024,
	}
}

// BufferingStore accumulates graph objects per type and forwards them to the
// next layer in bounded batches. It is purely a batching layer: objects are
// never dropped, and insertion order is preserved within a flushed batch.
//
// Any Add that pushes its queue over the configured count threshold triggers
// an implicit flush of ALL queues; the flush summary is returned in place of
// the usual empty one, so callers must inspect the result to know whether a
// flush occurred.
//
// Not safe for concurrent use; a visit is processed by a single worker.
type BufferingStore struct {
	next       ObjectStore
	thresholds Thresholds

	contents     []*model.Content
	contentBytes int64
	directories  []*model.Directory
	revisions    []*model.Revision
	releases     []*model.Release
}

// NewBufferingStore creates a BufferingStore in front of next.
func NewBufferingStore(next ObjectStore, thresholds Thresholds) *BufferingStore {
	return &BufferingStore{next: next, thresholds: thresholds}
}

func (b *BufferingStore) ContentAdd(contents []*model.Content) (WriteSummary, error) {
	b.contents = append(b.contents, contents...)
	for _, c := range contents {
		b.contentBytes += c.Length
	}
	if len(b.contents) > b.thresholds.Content {
		return b.Flush()
	}
	if b.contentBytes > b.thresholds.ContentBytes {
		return b.Flush()
	}
	return WriteSummary{}, nil
}

func (b *BufferingStore) DirectoryAdd(dirs []*model.Directory) (WriteSummary, error) {
	b.directories = append(b.directories, dirs...)
	if len(b.directories) > b.thresholds.Directory {
		return b.Flush()
	}
	return WriteSummary{}, nil
}

func (b *BufferingStore) RevisionAdd(revs []*model.Revision) (WriteSummary, error) {
	b.revisions = append(b.revisions, revs...)
	if len(b.revisions) > b.thresholds.Revision {
		return b.Flush()
	}
	return WriteSummary{}, nil
}

func (b *BufferingStore) ReleaseAdd(rels []*model.Release) (WriteSummary, error) {
	b.releases = append(b.releases, rels...)
	if len(b.releases) > b.thresholds.Release {
		return b.Flush()
	}
	return WriteSummary{}, nil
}

// Flush forces queued objects of the given types (all when none are named)
// through to the next layer, draining contents before directories before
// revisions before releases so referenced objects land first. Flushing an
// empty queue is a no-op and contributes nothing to the summary.
func (b *BufferingStore) Flush(types ...model.ObjectType) (WriteSummary, error) {
	wanted := func(t model.ObjectType) bool {
		if len(types) == 0 {
			return true
		}
		for _, w := range types {
			if w == t {
				return true
			}
		}
		return false
	}

	summary := WriteSummary{}

	if wanted(model.TypeContent) {
		if err := b.flushContents(summary); err != nil {
			return summary, err
		}
	}
	if wanted(model.TypeDirectory) {
		if err := flushQueue(&b.directories, b.thresholds.Directory, b.next.DirectoryAdd, summary); err != nil {
			return summary, fmt.Errorf("flushing directories: %w", err)
		}
	}
	if wanted(model.TypeRevision) {
		if err := flushQueue(&b.revisions, b.thresholds.Revision, b.next.RevisionAdd, summary); err != nil {
			return summary, fmt.Errorf("flushing revisions: %w", err)
		}
	}
	if wanted(model.TypeRelease) {
		if err := flushQueue(&b.releases, b.thresholds.Release, b.next.ReleaseAdd, summary); err != nil {
			return summary, fmt.Errorf("flushing releases: %w", err)
		}
	}

	// Forward the flush so stacked buffers drain too.
	downstream, err := b.next.Flush(types...)
	if err != nil {
		return summary, err
	}
	summary.Merge(downstream)

	return summary, nil
}

func (b *BufferingStore) flushContents(summary WriteSummary) error {
	if err := flushQueue(&b.contents, b.thresholds.Content, b.next.ContentAdd, summary); err != nil {
		return fmt.Errorf("flushing contents: %w", err)
	}
	b.contentBytes = 0
	return nil
}

// flushQueue drains a queue through add in batches of at most batchSize,
// merging the per-batch summaries.
func flushQueue[T any](queue *[]T, batchSize int, add func([]T) (WriteSummary, error), summary WriteSummary) error {
	pending := *queue
	if len(pending) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(pending)
	}
	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		s, err := add(pending[start:end])
		if err != nil {
			// Keep what was not submitted so a retried flush can
			// still drain it.
			*queue = pending[start:]
			return err
		}
		summary.Merge(s)
	}
	*queue = nil
	return nil
}
