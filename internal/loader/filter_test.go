package loader_test

import (
	"testing"

	"ingot/internal/loader"
	"ingot/internal/model"
	"ingot/internal/testutil"
)

// countingArchive counts missing queries so tests can assert the seen-set
// short-circuits repeat lookups.
type countingArchive struct {
	loader.Archive
	contentQueries  int
	revisionQueries int
}

func (c *countingArchive) ContentMissing(ids []model.ID) ([]model.ID, error) {
	c.contentQueries++
	return c.Archive.ContentMissing(ids)
}

func (c *countingArchive) RevisionMissing(ids []model.ID) ([]model.ID, error) {
	c.revisionQueries++
	return c.Archive.RevisionMissing(ids)
}

func TestFilteringStoreDropsKnownObjects(t *testing.T) {
	archive := testutil.NewTestArchive(t)
	known := model.NewContent([]byte("already archived"))
	if _, err := archive.ContentAdd([]*model.Content{known}); err != nil {
		t.Fatalf("seeding archive: %v", err)
	}

	f := loader.NewFilteringStore(archive)
	fresh := model.NewContent([]byte("new bytes"))

	summary, err := f.ContentAdd([]*model.Content{known, fresh})
	if err != nil {
		t.Fatalf("ContentAdd failed: %v", err)
	}
	if summary[model.TypeContent] != 1 {
		t.Errorf("expected 1 written, got %v", summary)
	}
}

func TestFilteringStoreDeduplicatesBatch(t *testing.T) {
	archive := testutil.NewTestArchive(t)
	f := loader.NewFilteringStore(archive)

	c := model.NewContent([]byte("dup"))
	summary, err := f.ContentAdd([]*model.Content{c, c, c})
	if err != nil {
		t.Fatalf("ContentAdd failed: %v", err)
	}
	if summary[model.TypeContent] != 1 {
		t.Errorf("expected 1 written for duplicated batch, got %v", summary)
	}
}

func TestFilteringStoreSeenSetSkipsRequery(t *testing.T) {
	counting := &countingArchive{Archive: testutil.NewTestArchive(t)}
	f := loader.NewFilteringStore(counting)

	c := model.NewContent([]byte("once"))

	if _, err := f.ContentAdd([]*model.Content{c}); err != nil {
		t.Fatalf("ContentAdd failed: %v", err)
	}
	if counting.contentQueries != 1 {
		t.Fatalf("expected 1 missing query, got %d", counting.contentQueries)
	}

	// Same id again in the same run: no archive round-trip, nothing
	// written.
	summary, err := f.ContentAdd([]*model.Content{c})
	if err != nil {
		t.Fatalf("second ContentAdd failed: %v", err)
	}
	if counting.contentQueries != 1 {
		t.Errorf("expected no further missing queries, got %d", counting.contentQueries)
	}
	if summary.Total() != 0 {
		t.Errorf("expected zero-write summary, got %v", summary)
	}
}

func TestFilteringStoreRevisions(t *testing.T) {
	counting := &countingArchive{Archive: testutil.NewTestArchive(t)}
	f := loader.NewFilteringStore(counting)

	rev := &model.Revision{
		Directory: "4b825dc642cb6eb9a060e54bf8d69288fbee4904",
		Author:    model.Person{Name: "a", Email: "a@example.org"},
		Committer: model.Person{Name: "a", Email: "a@example.org"},
		Type:      model.RevisionTar,
		Synthetic: true,
	}
	rev.ID = model.ComputeRevisionID(rev)

	s1, err := f.RevisionAdd([]*model.Revision{rev})
	if err != nil {
		t.Fatalf("RevisionAdd failed: %v", err)
	}
	s2, err := f.RevisionAdd([]*model.Revision{rev})
	if err != nil {
		t.Fatalf("second RevisionAdd failed: %v", err)
	}
	if s1[model.TypeRevision] != 1 || s2.Total() != 0 {
		t.Errorf("unexpected summaries: %v then %v", s1, s2)
	}
	if counting.revisionQueries != 1 {
		t.Errorf("expected 1 revision missing query, got %d", counting.revisionQueries)
	}
}

func TestFilteringStoreReleasesPassThrough(t *testing.T) {
	archive := testutil.NewTestArchive(t)
	f := loader.NewFilteringStore(archive)

	rel := &model.Release{
		Name:       "v1",
		Target:     "257cc5642cb1a054f08cc83f2d943e56fd3ebe99",
		TargetType: model.TypeRevision,
		Author:     model.Person{Name: "a", Email: "a@example.org"},
	}
	rel.ID = model.ComputeReleaseID(rel)

	s1, err := f.ReleaseAdd([]*model.Release{rel})
	if err != nil {
		t.Fatalf("ReleaseAdd failed: %v", err)
	}
	if s1[model.TypeRelease] != 1 {
		t.Errorf("expected 1 release written, got %v", s1)
	}

	// Releases pass through unfiltered; idempotence comes from the
	// archive itself.
	s2, err := f.ReleaseAdd([]*model.Release{rel})
	if err != nil {
		t.Fatalf("second ReleaseAdd failed: %v", err)
	}
	if s2[model.TypeRelease] != 0 {
		t.Errorf("expected 0 written on re-add, got %v", s2)
	}
}
