package loader_test

import (
	"errors"
	"testing"
	"time"

	"ingot/internal/loader"
	"ingot/internal/model"
	"ingot/internal/testutil"
)

// seedGraph stores a one-file tree under a synthetic revision and returns
// the revision.
func seedGraph(t *testing.T, archive loader.Archive, fileBody string) *model.Revision {
	t.Helper()

	content := model.NewContent([]byte(fileBody))
	if _, err := archive.ContentAdd([]*model.Content{content}); err != nil {
		t.Fatalf("seeding content: %v", err)
	}

	dir, err := model.NewDirectory([]model.DirectoryEntry{
		{Name: "data.txt", Type: model.EntryFile, Perms: 0100644, Target: content.Sha1Git},
	})
	if err != nil {
		t.Fatalf("building directory: %v", err)
	}
	if _, err := archive.DirectoryAdd([]*model.Directory{dir}); err != nil {
		t.Fatalf("seeding directory: %v", err)
	}

	rev := &model.Revision{
		Directory:     dir.ID,
		Author:        model.Person{Name: "a", Email: "a@example.org"},
		Committer:     model.Person{Name: "a", Email: "a@example.org"},
		Date:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CommitterDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Message:       "seed",
		Type:          model.RevisionTar,
		Synthetic:     true,
	}
	rev.ID = model.ComputeRevisionID(rev)
	if _, err := archive.RevisionAdd([]*model.Revision{rev}); err != nil {
		t.Fatalf("seeding revision: %v", err)
	}
	return rev
}

func storeSnapshot(t *testing.T, archive loader.Archive, branches map[string]model.Branch) *model.Snapshot {
	t.Helper()
	snap, err := model.NewSnapshot(branches)
	if err != nil {
		t.Fatalf("building snapshot: %v", err)
	}
	if _, err := archive.SnapshotAdd(snap); err != nil {
		t.Fatalf("storing snapshot: %v", err)
	}
	return snap
}

func TestCheckSnapshotPasses(t *testing.T) {
	archive := testutil.NewTestArchive(t)
	rev := seedGraph(t, archive, "hello")

	snap := storeSnapshot(t, archive, map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRevision, Target: string(rev.ID)},
		"HEAD":         {Type: model.TargetAlias, Target: "releases/1.0"},
	})

	if err := loader.CheckSnapshot(archive, snap, nil); err != nil {
		t.Errorf("CheckSnapshot failed on consistent snapshot: %v", err)
	}
}

func TestCheckSnapshotSkipsSubmoduleEntries(t *testing.T) {
	archive := testutil.NewTestArchive(t)

	content := model.NewContent([]byte("hello"))
	if _, err := archive.ContentAdd([]*model.Content{content}); err != nil {
		t.Fatalf("seeding content: %v", err)
	}

	// The rev entry pins a revision in another origin; it is deliberately
	// absent from this archive and must not fail the closure check.
	dir, err := model.NewDirectory([]model.DirectoryEntry{
		{Name: "data.txt", Type: model.EntryFile, Perms: 0100644, Target: content.Sha1Git},
		{Name: "vendor-lib", Type: model.EntryRev, Perms: 0160000, Target: "3333333333333333333333333333333333333333"},
	})
	if err != nil {
		t.Fatalf("building directory: %v", err)
	}
	if _, err := archive.DirectoryAdd([]*model.Directory{dir}); err != nil {
		t.Fatalf("seeding directory: %v", err)
	}

	rev := &model.Revision{
		Directory:     dir.ID,
		Author:        model.Person{Name: "a", Email: "a@example.org"},
		Committer:     model.Person{Name: "a", Email: "a@example.org"},
		Date:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CommitterDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Message:       "seed",
		Type:          model.RevisionTar,
		Synthetic:     true,
	}
	rev.ID = model.ComputeRevisionID(rev)
	if _, err := archive.RevisionAdd([]*model.Revision{rev}); err != nil {
		t.Fatalf("seeding revision: %v", err)
	}

	snap := storeSnapshot(t, archive, map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRevision, Target: string(rev.ID)},
	})

	if err := loader.CheckSnapshot(archive, snap, nil); err != nil {
		t.Errorf("CheckSnapshot failed on snapshot with submodule entry: %v", err)
	}
}

func TestCheckSnapshotMissingSnapshot(t *testing.T) {
	archive := testutil.NewTestArchive(t)

	snap, err := model.NewSnapshot(map[string]model.Branch{})
	if err != nil {
		t.Fatalf("building snapshot: %v", err)
	}

	err = loader.CheckSnapshot(archive, snap, nil)
	var missing *loader.SnapshotMissingError
	if !errors.As(err, &missing) {
		t.Errorf("expected SnapshotMissingError, got %v", err)
	}
}

func TestCheckSnapshotDanglingAlias(t *testing.T) {
	archive := testutil.NewTestArchive(t)

	snap := storeSnapshot(t, archive, map[string]model.Branch{
		"HEAD": {Type: model.TargetAlias, Target: "releases/ghost"},
	})

	err := loader.CheckSnapshot(archive, snap, nil)
	var dangling *loader.DanglingAliasError
	if !errors.As(err, &dangling) {
		t.Fatalf("expected DanglingAliasError, got %v", err)
	}
	if dangling.Branch != "HEAD" || dangling.Target != "releases/ghost" {
		t.Errorf("unexpected error detail: %+v", dangling)
	}
}

func TestCheckSnapshotMissingRevision(t *testing.T) {
	archive := testutil.NewTestArchive(t)

	snap := storeSnapshot(t, archive, map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRevision, Target: "1111111111111111111111111111111111111111"},
	})

	err := loader.CheckSnapshot(archive, snap, nil)
	var missing *loader.MissingRevisionError
	if !errors.As(err, &missing) {
		t.Errorf("expected MissingRevisionError, got %v", err)
	}
}

func TestCheckSnapshotMissingDirectory(t *testing.T) {
	archive := testutil.NewTestArchive(t)

	rev := &model.Revision{
		Directory: "2222222222222222222222222222222222222222", // never stored
		Author:    model.Person{Name: "a", Email: "a@example.org"},
		Committer: model.Person{Name: "a", Email: "a@example.org"},
		Type:      model.RevisionTar,
		Synthetic: true,
	}
	rev.ID = model.ComputeRevisionID(rev)
	if _, err := archive.RevisionAdd([]*model.Revision{rev}); err != nil {
		t.Fatalf("seeding revision: %v", err)
	}

	snap := storeSnapshot(t, archive, map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRevision, Target: string(rev.ID)},
	})

	err := loader.CheckSnapshot(archive, snap, nil)
	var missing *loader.MissingDirectoryError
	if !errors.As(err, &missing) {
		t.Errorf("expected MissingDirectoryError, got %v", err)
	}
}

func TestCheckSnapshotMissingContent(t *testing.T) {
	archive := testutil.NewTestArchive(t)

	content := model.NewContent([]byte("never stored"))
	dir, err := model.NewDirectory([]model.DirectoryEntry{
		{Name: "gone.txt", Type: model.EntryFile, Perms: 0100644, Target: content.Sha1Git},
	})
	if err != nil {
		t.Fatalf("building directory: %v", err)
	}
	if _, err := archive.DirectoryAdd([]*model.Directory{dir}); err != nil {
		t.Fatalf("seeding directory: %v", err)
	}

	rev := &model.Revision{
		Directory: dir.ID,
		Author:    model.Person{Name: "a", Email: "a@example.org"},
		Committer: model.Person{Name: "a", Email: "a@example.org"},
		Type:      model.RevisionTar,
		Synthetic: true,
	}
	rev.ID = model.ComputeRevisionID(rev)
	if _, err := archive.RevisionAdd([]*model.Revision{rev}); err != nil {
		t.Fatalf("seeding revision: %v", err)
	}

	snap := storeSnapshot(t, archive, map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRevision, Target: string(rev.ID)},
	})

	err = loader.CheckSnapshot(archive, snap, nil)
	var missing *loader.MissingContentError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingContentError, got %v", err)
	}
	if missing.ID != content.Sha1Git {
		t.Errorf("error names %s, want %s", missing.ID, content.Sha1Git)
	}
}

func TestCheckSnapshotMissingRelease(t *testing.T) {
	archive := testutil.NewTestArchive(t)

	snap := storeSnapshot(t, archive, map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRelease, Target: "3333333333333333333333333333333333333333"},
	})

	err := loader.CheckSnapshot(archive, snap, nil)
	var missing *loader.MissingReleaseError
	if !errors.As(err, &missing) {
		t.Errorf("expected MissingReleaseError, got %v", err)
	}
}

func TestCheckSnapshotReleaseClosure(t *testing.T) {
	archive := testutil.NewTestArchive(t)
	rev := seedGraph(t, archive, "released bytes")

	rel := &model.Release{
		Name:       "v1.0",
		Target:     rev.ID,
		TargetType: model.TypeRevision,
		Author:     model.Person{Name: "a", Email: "a@example.org"},
		Date:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	rel.ID = model.ComputeReleaseID(rel)
	if _, err := archive.ReleaseAdd([]*model.Release{rel}); err != nil {
		t.Fatalf("seeding release: %v", err)
	}

	snap := storeSnapshot(t, archive, map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRelease, Target: string(rel.ID)},
	})

	if err := loader.CheckSnapshot(archive, snap, nil); err != nil {
		t.Errorf("CheckSnapshot failed on release-targeted branch: %v", err)
	}
}

func TestCheckSnapshotAllowedAbsent(t *testing.T) {
	archive := testutil.NewTestArchive(t)

	snap := storeSnapshot(t, archive, map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRevision, Target: "1111111111111111111111111111111111111111"},
	})

	allowed := map[string]bool{"releases/1.0": true}
	if err := loader.CheckSnapshot(archive, snap, allowed); err != nil {
		t.Errorf("CheckSnapshot must exempt allowed-absent branches: %v", err)
	}
}

func TestCheckSnapshotBranchSetMismatch(t *testing.T) {
	archive := testutil.NewTestArchive(t)
	rev := seedGraph(t, archive, "x")

	stored := storeSnapshot(t, archive, map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRevision, Target: string(rev.ID)},
	})

	// Expect a snapshot carrying a branch the stored one lacks. Same id is
	// forced to simulate corruption.
	expected := &model.Snapshot{
		ID: stored.ID,
		Branches: map[string]model.Branch{
			"releases/1.0": {Type: model.TargetRevision, Target: string(rev.ID)},
			"releases/2.0": {Type: model.TargetRevision, Target: string(rev.ID)},
		},
	}

	err := loader.CheckSnapshot(archive, expected, nil)
	var mismatch *loader.BranchSetMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected BranchSetMismatchError, got %v", err)
	}
	if len(mismatch.Missing) != 1 || mismatch.Missing[0] != "releases/2.0" {
		t.Errorf("unexpected missing set: %v", mismatch.Missing)
	}
}

func TestCheckSnapshotDanglingBranchAllowed(t *testing.T) {
	archive := testutil.NewTestArchive(t)

	snap := storeSnapshot(t, archive, map[string]model.Branch{
		"releases/1.0": {Type: model.TargetDangling, Target: ""},
	})

	if err := loader.CheckSnapshot(archive, snap, nil); err != nil {
		t.Errorf("explicitly dangling branches must pass: %v", err)
	}
}
