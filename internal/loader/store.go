package loader

import "ingot/internal/model"

// WriteSummary reports, per object type, how many objects a write actually
// persisted. An empty summary means nothing reached the archive.
type WriteSummary map[model.ObjectType]int

// Total returns the number of objects written across all types.
func (s WriteSummary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Merge folds other into s.
func (s WriteSummary) Merge(other WriteSummary) {
	for t, c := range other {
		s[t] += c
	}
}

// ObjectStore is the write path the loader pushes graph objects through.
// Implementations may buffer or filter; Flush forces everything queued (or
// only the named types) down to the archive and returns what was written.
type ObjectStore interface {
	ContentAdd(contents []*model.Content) (WriteSummary, error)
	DirectoryAdd(dirs []*model.Directory) (WriteSummary, error)
	RevisionAdd(revs []*model.Revision) (WriteSummary, error)
	ReleaseAdd(rels []*model.Release) (WriteSummary, error)
	Flush(types ...model.ObjectType) (WriteSummary, error)
}

// archiveStore adapts an Archive to the ObjectStore interface. It is the
// bottom of the proxy stack: every Add goes straight through.
type archiveStore struct {
	archive Archive
}

// NewArchiveStore wraps an archive as a pass-through ObjectStore.
func NewArchiveStore(archive Archive) ObjectStore {
	return &archiveStore{archive: archive}
}

func (s *archiveStore) ContentAdd(contents []*model.Content) (WriteSummary, error) {
	if len(contents) == 0 {
		return WriteSummary{}, nil
	}
	n, err := s.archive.ContentAdd(contents)
	if err != nil {
		return nil, err
	}
	return WriteSummary{model.TypeContent: n}, nil
}

func (s *archiveStore) DirectoryAdd(dirs []*model.Directory) (WriteSummary, error) {
	if len(dirs) == 0 {
		return WriteSummary{}, nil
	}
	n, err := s.archive.DirectoryAdd(dirs)
	if err != nil {
		return nil, err
	}
	return WriteSummary{model.TypeDirectory: n}, nil
}

func (s *archiveStore) RevisionAdd(revs []*model.Revision) (WriteSummary, error) {
	if len(revs) == 0 {
		return WriteSummary{}, nil
	}
	n, err := s.archive.RevisionAdd(revs)
	if err != nil {
		return nil, err
	}
	return WriteSummary{model.TypeRevision: n}, nil
}

func (s *archiveStore) ReleaseAdd(rels []*model.Release) (WriteSummary, error) {
	if len(rels) == 0 {
		return WriteSummary{}, nil
	}
	n, err := s.archive.ReleaseAdd(rels)
	if err != nil {
		return nil, err
	}
	return WriteSummary{model.TypeRelease: n}, nil
}

func (s *archiveStore) Flush(types ...model.ObjectType) (WriteSummary, error) {
	return WriteSummary{}, nil
}
