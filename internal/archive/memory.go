package archive

import (
	"sync"

	"ingot/internal/loader"
	"ingot/internal/model"
)

// MemoryArchive is a self-contained in-memory Archive. It backs the "memory"
// archive config type and doubles as the test double for the loader core,
// like any real archive it is safe for concurrent use.
type MemoryArchive struct {
	mu sync.Mutex

	contents    map[model.ID]*model.Content
	directories map[model.ID]*model.Directory
	revisions   map[model.ID]*model.Revision
	releases    map[model.ID]*model.Release
	snapshots   map[model.ID]*model.Snapshot
	extids      map[model.ID]model.ID

	origins  map[string]bool
	visits   map[string][]*model.OriginVisit
	statuses map[string][]*model.OriginVisitStatus
}

var _ loader.Archive = (*MemoryArchive)(nil)

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		contents:    map[model.ID]*model.Content{},
		directories: map[model.ID]*model.Directory{},
		revisions:   map[model.ID]*model.Revision{},
		releases:    map[model.ID]*model.Release{},
		snapshots:   map[model.ID]*model.Snapshot{},
		extids:      map[model.ID]model.ID{},
		origins:     map[string]bool{},
		visits:      map[string][]*model.OriginVisit{},
		statuses:    map[string][]*model.OriginVisitStatus{},
	}
}

func (m *MemoryArchive) ContentAdd(contents []*model.Content) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range contents {
		if _, ok := m.contents[c.Sha1Git]; !ok {
			m.contents[c.Sha1Git] = c
			n++
		}
	}
	return n, nil
}

func (m *MemoryArchive) DirectoryAdd(dirs []*model.Directory) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range dirs {
		if _, ok := m.directories[d.ID]; !ok {
			m.directories[d.ID] = d
			n++
		}
	}
	return n, nil
}

func (m *MemoryArchive) RevisionAdd(revs []*model.Revision) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range revs {
		if _, ok := m.revisions[r.ID]; !ok {
			m.revisions[r.ID] = r
			n++
		}
	}
	return n, nil
}

func (m *MemoryArchive) ReleaseAdd(rels []*model.Release) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range rels {
		if _, ok := m.releases[r.ID]; !ok {
			m.releases[r.ID] = r
			n++
		}
	}
	return n, nil
}

func (m *MemoryArchive) SnapshotAdd(snap *model.Snapshot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[snap.ID]; ok {
		return 0, nil
	}
	m.snapshots[snap.ID] = snap
	return 1, nil
}

func (m *MemoryArchive) ContentMissing(ids []model.ID) ([]model.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return missingFrom(m.contents, ids), nil
}

func (m *MemoryArchive) DirectoryMissing(ids []model.ID) ([]model.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return missingFrom(m.directories, ids), nil
}

func (m *MemoryArchive) RevisionMissing(ids []model.ID) ([]model.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return missingFrom(m.revisions, ids), nil
}

func (m *MemoryArchive) ContentGet(id model.ID) (*model.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contents[id], nil
}

func (m *MemoryArchive) DirectoryGet(id model.ID) (*model.Directory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.directories[id], nil
}

func (m *MemoryArchive) RevisionGet(id model.ID) (*model.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revisions[id], nil
}

func (m *MemoryArchive) ReleaseGet(id model.ID) (*model.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases[id], nil
}

func (m *MemoryArchive) SnapshotGet(id model.ID) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[id], nil
}

func (m *MemoryArchive) ExtIDGet(manifest model.ID) (model.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extids[manifest], nil
}

func (m *MemoryArchive) ExtIDAdd(manifest, revision model.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extids[manifest] = revision
	return nil
}

func (m *MemoryArchive) OriginAdd(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.origins[url] = true
	return nil
}

func (m *MemoryArchive) OriginVisitAdd(visit *model.OriginVisit) (*model.OriginVisit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := *visit
	v.Visit = len(m.visits[visit.Origin]) + 1
	m.visits[visit.Origin] = append(m.visits[visit.Origin], &v)
	return &v, nil
}

func (m *MemoryArchive) OriginVisitStatusAdd(status *model.OriginVisitStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *status
	m.statuses[status.Origin] = append(m.statuses[status.Origin], &s)
	return nil
}

func (m *MemoryArchive) OriginVisitGetLatest(origin string, requireSnapshot bool) (*model.OriginVisitStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *model.OriginVisitStatus
	for _, s := range m.statuses[origin] {
		if requireSnapshot && s.Snapshot == nil {
			continue
		}
		if latest == nil || statusAfter(s, latest) {
			latest = s
		}
	}
	return latest, nil
}

// statusAfter reports whether a comes after b in (date, visit) ordering.
func statusAfter(a, b *model.OriginVisitStatus) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.Visit >= b.Visit
}

func (m *MemoryArchive) Close() error { return nil }

// OriginVisitStatuses returns the append-only status history for an origin,
// in insertion order.
func (m *MemoryArchive) OriginVisitStatuses(origin string) ([]*model.OriginVisitStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.OriginVisitStatus, len(m.statuses[origin]))
	copy(out, m.statuses[origin])
	return out, nil
}

func missingFrom[T any](store map[model.ID]T, ids []model.ID) []model.ID {
	var missing []model.ID
	seen := map[model.ID]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := store[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
