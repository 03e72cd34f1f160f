package loader

import (
	"fmt"
	"sort"

	"ingot/internal/model"
)

// Consistency errors are defects in a published snapshot's closure, reported
// with distinct types so callers and tests never conflate them with ordinary
// "not yet persisted" states.

// SnapshotMissingError reports that the snapshot itself is not retrievable.
type SnapshotMissingError struct {
	ID model.ID
}

func (e *SnapshotMissingError) Error() string {
	return fmt.Sprintf("snapshot %s not found in archive", e.ID)
}

// BranchSetMismatchError reports that the stored snapshot's branch set
// differs from the expected one. This is a hard inconsistency.
type BranchSetMismatchError struct {
	ID      model.ID
	Missing []string // expected but not stored
	Extra   []string // stored but not expected
}

func (e *BranchSetMismatchError) Error() string {
	return fmt.Sprintf("snapshot %s branch set mismatch: missing %v, extra %v", e.ID, e.Missing, e.Extra)
}

// DanglingAliasError reports an alias whose target branch does not exist in
// the same snapshot.
type DanglingAliasError struct {
	Branch string
	Target string
}

func (e *DanglingAliasError) Error() string {
	return fmt.Sprintf("branch %q aliases nonexistent branch %q", e.Branch, e.Target)
}

// MissingRevisionError reports a branch whose revision target is absent.
type MissingRevisionError struct {
	Branch string
	ID     model.ID
}

func (e *MissingRevisionError) Error() string {
	return fmt.Sprintf("branch %q: revision %s not found", e.Branch, e.ID)
}

// MissingDirectoryError reports an unretrievable directory in a revision's
// closure.
type MissingDirectoryError struct {
	ID model.ID
}

func (e *MissingDirectoryError) Error() string {
	return fmt.Sprintf("directory %s not found", e.ID)
}

// MissingContentError reports an unretrievable leaf content in a directory's
// closure.
type MissingContentError struct {
	ID model.ID
}

func (e *MissingContentError) Error() string {
	return fmt.Sprintf("content %s not found", e.ID)
}

// MissingReleaseError reports a branch whose release target is absent.
type MissingReleaseError struct {
	Branch string
	ID     model.ID
}

func (e *MissingReleaseError) Error() string {
	return fmt.Sprintf("branch %q: release %s not found", e.Branch, e.ID)
}

// CheckSnapshot verifies that a published snapshot's closure is fully
// fetchable from the archive: the snapshot itself is retrievable with
// exactly the expected branches, every alias resolves in one hop, and every
// revision or release branch leads to a closed revision → directory →
// content graph.
//
// Branch names in allowedAbsent are exempted from existence checks (known
// dangling branches) but still participate in the branch-set comparison.
func CheckSnapshot(archive Archive, snap *model.Snapshot, allowedAbsent map[string]bool) error {
	stored, err := archive.SnapshotGet(snap.ID)
	if err != nil {
		return fmt.Errorf("fetching snapshot %s: %w", snap.ID, err)
	}
	if stored == nil {
		return &SnapshotMissingError{ID: snap.ID}
	}

	if err := compareBranchSets(snap, stored); err != nil {
		return err
	}

	checked := map[model.ID]bool{} // directories already walked

	for _, name := range sortedBranchNames(stored.Branches) {
		branch := stored.Branches[name]
		if allowedAbsent[name] {
			continue
		}
		switch branch.Type {
		case model.TargetAlias:
			if _, ok := stored.Branches[branch.Target]; !ok {
				return &DanglingAliasError{Branch: name, Target: branch.Target}
			}
		case model.TargetRevision:
			if err := checkRevision(archive, name, model.ID(branch.Target), checked); err != nil {
				return err
			}
		case model.TargetRelease:
			if err := checkRelease(archive, name, model.ID(branch.Target), checked); err != nil {
				return err
			}
		case model.TargetDangling:
			// Recorded dangling on purpose; nothing to resolve.
		}
	}

	return nil
}

func compareBranchSets(expected, stored *model.Snapshot) error {
	var missing, extra []string
	for name := range expected.Branches {
		if _, ok := stored.Branches[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range stored.Branches {
		if _, ok := expected.Branches[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return &BranchSetMismatchError{ID: expected.ID, Missing: missing, Extra: extra}
	}
	return nil
}

func checkRevision(archive Archive, branch string, id model.ID, checked map[model.ID]bool) error {
	rev, err := archive.RevisionGet(id)
	if err != nil {
		return fmt.Errorf("fetching revision %s: %w", id, err)
	}
	if rev == nil {
		return &MissingRevisionError{Branch: branch, ID: id}
	}
	return checkDirectory(archive, rev.Directory, checked)
}

func checkRelease(archive Archive, branch string, id model.ID, checked map[model.ID]bool) error {
	rel, err := archive.ReleaseGet(id)
	if err != nil {
		return fmt.Errorf("fetching release %s: %w", id, err)
	}
	if rel == nil {
		return &MissingReleaseError{Branch: branch, ID: id}
	}
	if rel.TargetType == model.TypeRevision {
		return checkRevision(archive, branch, rel.Target, checked)
	}
	return nil
}

// checkDirectory walks the directory closure, verifying every sub-directory
// is retrievable and batching the existence check over leaf contents.
// Submodule entries point into other origins and are outside this closure.
func checkDirectory(archive Archive, id model.ID, checked map[model.ID]bool) error {
	if checked[id] {
		return nil
	}
	dir, err := archive.DirectoryGet(id)
	if err != nil {
		return fmt.Errorf("fetching directory %s: %w", id, err)
	}
	if dir == nil {
		return &MissingDirectoryError{ID: id}
	}
	checked[id] = true

	var contents []model.ID
	for _, entry := range dir.Entries {
		switch entry.Type {
		case model.EntryFile:
			contents = append(contents, entry.Target)
		case model.EntryDir:
			if err := checkDirectory(archive, entry.Target, checked); err != nil {
				return err
			}
		case model.EntryRev:
			// Pinned revision in another origin; not part of this closure.
		}
	}

	if len(contents) > 0 {
		missing, err := archive.ContentMissing(contents)
		if err != nil {
			return fmt.Errorf("checking contents of directory %s: %w", id, err)
		}
		if len(missing) > 0 {
			return &MissingContentError{ID: missing[0]}
		}
	}

	return nil
}

func sortedBranchNames(branches map[string]model.Branch) []string {
	names := make([]string, 0, len(branches))
	for name := range branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
