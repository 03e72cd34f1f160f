package loader

import (
	"testing"

	"ingot/internal/model"
)

func TestMergeBranchesReplaceMode(t *testing.T) {
	previous := &model.Snapshot{Branches: map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRevision, Target: "aaaa"},
		"HEAD":         {Type: model.TargetAlias, Target: "releases/1.0"},
	}}
	resolved := map[string]model.Branch{
		"releases/2.0": {Type: model.TargetRevision, Target: "bbbb"},
	}

	merged := MergeBranches(resolved, previous, false)

	if len(merged) != 1 {
		t.Fatalf("expected 1 branch, got %d: %v", len(merged), merged)
	}
	if merged["releases/2.0"].Target != "bbbb" {
		t.Errorf("unexpected branch: %+v", merged["releases/2.0"])
	}
}

func TestMergeBranchesAppendMode(t *testing.T) {
	previous := &model.Snapshot{Branches: map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRevision, Target: "aaaa"},
		"releases/1.5": {Type: model.TargetRevision, Target: "cccc"},
		"HEAD":         {Type: model.TargetAlias, Target: "releases/1.5"},
	}}
	resolved := map[string]model.Branch{
		"releases/1.5": {Type: model.TargetRevision, Target: "dddd"}, // re-ingested
		"releases/2.0": {Type: model.TargetRevision, Target: "bbbb"},
	}

	merged := MergeBranches(resolved, previous, true)

	if len(merged) != 3 {
		t.Fatalf("expected 3 branches, got %d: %v", len(merged), merged)
	}
	if merged["releases/1.0"].Target != "aaaa" {
		t.Errorf("carried branch lost: %+v", merged["releases/1.0"])
	}
	if merged["releases/1.5"].Target != "dddd" {
		t.Errorf("resolved branch must override previous: %+v", merged["releases/1.5"])
	}
	// Previous aliases are never copied; HEAD is recomputed by the caller.
	if _, ok := merged["HEAD"]; ok {
		t.Error("previous alias must not be carried over")
	}
}

func TestMergeBranchesNoPrevious(t *testing.T) {
	resolved := map[string]model.Branch{
		"releases/1.0": {Type: model.TargetRevision, Target: "aaaa"},
	}
	merged := MergeBranches(resolved, nil, true)
	if len(merged) != 1 || merged["releases/1.0"].Target != "aaaa" {
		t.Errorf("unexpected merge result: %v", merged)
	}
}

func TestSetDefaultAlias(t *testing.T) {
	t.Run("points HEAD at existing branch", func(t *testing.T) {
		branches := map[string]model.Branch{
			"releases/2.0": {Type: model.TargetRevision, Target: "bbbb"},
		}
		SetDefaultAlias(branches, "releases/2.0")

		head, ok := branches[model.HeadBranch]
		if !ok {
			t.Fatal("expected HEAD alias")
		}
		if head.Type != model.TargetAlias || head.Target != "releases/2.0" {
			t.Errorf("unexpected HEAD: %+v", head)
		}
	})

	t.Run("no dangling HEAD for absent target", func(t *testing.T) {
		branches := map[string]model.Branch{
			"releases/2.0": {Type: model.TargetRevision, Target: "bbbb"},
		}
		SetDefaultAlias(branches, "releases/9.9")

		if _, ok := branches[model.HeadBranch]; ok {
			t.Error("HEAD must not alias a nonexistent branch")
		}
	})
}

func TestBranchVersions(t *testing.T) {
	branches := map[string]model.Branch{
		"releases/2.0":  {Type: model.TargetRevision, Target: "bbbb"},
		"releases/1.0":  {Type: model.TargetRelease, Target: "aaaa"},
		"HEAD":          {Type: model.TargetAlias, Target: "releases/2.0"},
		"refs/whatever": {Type: model.TargetRevision, Target: "cccc"},
	}

	versions := branchVersions(branches)

	if len(versions) != 2 || versions[0] != "1.0" || versions[1] != "2.0" {
		t.Errorf("branchVersions = %v, want [1.0 2.0]", versions)
	}
}
