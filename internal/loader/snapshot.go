package loader

import "ingot/internal/model"

// MergeBranches computes the branch mapping for a new snapshot.
//
// When appendPrev is false the result is exactly the resolved branches. When
// true, the previous snapshot's branches are carried over and every name
// present in resolved overrides the old target, so re-ingesting a single
// version never erases branches for versions absent from the current
// configuration.
//
// Aliases from the previous snapshot are never copied: alias resolution is
// always recomputed from the final merged mapping by the caller, avoiding
// stale default-branch pointers.
func MergeBranches(resolved map[string]model.Branch, previous *model.Snapshot, appendPrev bool) map[string]model.Branch {
	merged := make(map[string]model.Branch, len(resolved))

	if appendPrev && previous != nil {
		for name, branch := range previous.Branches {
			if branch.Type == model.TargetAlias {
				continue
			}
			merged[name] = branch
		}
	}
	for name, branch := range resolved {
		merged[name] = branch
	}

	return merged
}

// SetDefaultAlias points the HEAD alias at target, provided the target
// branch exists in the mapping. A mapping without the target branch keeps no
// HEAD at all rather than a dangling alias.
func SetDefaultAlias(branches map[string]model.Branch, target string) {
	if _, ok := branches[target]; !ok {
		return
	}
	branches[model.HeadBranch] = model.Branch{Type: model.TargetAlias, Target: target}
}
