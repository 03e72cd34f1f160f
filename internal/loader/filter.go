package loader

import (
	"fmt"

	"ingot/internal/model"
)

// FilteringStore drops objects already known to be present before forwarding
// the rest to the archive. Presence is established in two steps: a local
// in-process set of ids confirmed-or-submitted earlier in the same run, then
// a batched missing query against the archive for the remainder.
//
// The local set is a per-process optimization, not a correctness cache: a
// cold process re-queries the archive. This is what makes repeated visits of
// a stable origin cheap — unchanged contents, directories and revisions are
// recognized without re-transmission.
//
// Releases have no missing query in the archive contract and pass through
// unfiltered.
//
// Not safe for concurrent use; a visit is processed by a single worker.
type FilteringStore struct {
	next    ObjectStore
	archive Archive
	seen    map[model.ObjectType]map[model.ID]struct{}
}

// NewFilteringStore creates a FilteringStore writing through to archive.
func NewFilteringStore(archive Archive) *FilteringStore {
	return &FilteringStore{
		next:    NewArchiveStore(archive),
		archive: archive,
		seen: map[model.ObjectType]map[model.ID]struct{}{
			model.TypeContent:   {},
			model.TypeDirectory: {},
			model.TypeRevision:  {},
		},
	}
}

func (f *FilteringStore) ContentAdd(contents []*model.Content) (WriteSummary, error) {
	unknown, err := filterKnown(f, model.TypeContent, contents,
		func(c *model.Content) model.ID { return c.Sha1Git },
		f.archive.ContentMissing)
	if err != nil {
		return nil, fmt.Errorf("filtering contents: %w", err)
	}
	return f.next.ContentAdd(unknown)
}

func (f *FilteringStore) DirectoryAdd(dirs []*model.Directory) (WriteSummary, error) {
	unknown, err := filterKnown(f, model.TypeDirectory, dirs,
		func(d *model.Directory) model.ID { return d.ID },
		f.archive.DirectoryMissing)
	if err != nil {
		return nil, fmt.Errorf("filtering directories: %w", err)
	}
	return f.next.DirectoryAdd(unknown)
}

func (f *FilteringStore) RevisionAdd(revs []*model.Revision) (WriteSummary, error) {
	unknown, err := filterKnown(f, model.TypeRevision, revs,
		func(r *model.Revision) model.ID { return r.ID },
		f.archive.RevisionMissing)
	if err != nil {
		return nil, fmt.Errorf("filtering revisions: %w", err)
	}
	return f.next.RevisionAdd(unknown)
}

func (f *FilteringStore) ReleaseAdd(rels []*model.Release) (WriteSummary, error) {
	return f.next.ReleaseAdd(rels)
}

func (f *FilteringStore) Flush(types ...model.ObjectType) (WriteSummary, error) {
	return f.next.Flush(types...)
}

// filterKnown returns the subset of objs not yet known present, in input
// order, and marks every input id as seen for the rest of the run.
func filterKnown[T any](f *FilteringStore, objType model.ObjectType, objs []T,
	idOf func(T) model.ID, missing func([]model.ID) ([]model.ID, error)) ([]T, error) {

	if len(objs) == 0 {
		return nil, nil
	}

	seen := f.seen[objType]

	// Deduplicate the batch and strip ids already seen this run.
	var queryIDs []model.ID
	byID := make(map[model.ID]T, len(objs))
	for _, obj := range objs {
		id := idOf(obj)
		if _, ok := seen[id]; ok {
			continue
		}
		if _, ok := byID[id]; ok {
			continue
		}
		byID[id] = obj
		queryIDs = append(queryIDs, id)
	}
	if len(queryIDs) == 0 {
		return nil, nil
	}

	missingIDs, err := missing(queryIDs)
	if err != nil {
		return nil, err
	}

	unknown := make([]T, 0, len(missingIDs))
	for _, id := range missingIDs {
		if obj, ok := byID[id]; ok {
			unknown = append(unknown, obj)
		}
	}

	// Everything queried is now confirmed present or about to be
	// submitted; either way it never needs re-querying this run.
	for _, id := range queryIDs {
		seen[id] = struct{}{}
	}

	return unknown, nil
}
