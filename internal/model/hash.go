package model

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// hashObject computes the git object id over "<type> <len>\x00<body>".
func hashObject(objType string, body []byte) ID {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", objType, len(body))
	h.Write(body)
	return ID(hex.EncodeToString(h.Sum(nil)))
}

// NewContent builds a Content from raw bytes, computing all digests.
func NewContent(data []byte) *Content {
	sum := sha256.Sum256(data)
	return &Content{
		Sha1Git: hashObject("blob", data),
		Sha256:  hex.EncodeToString(sum[:]),
		Length:  int64(len(data)),
		Data:    data,
	}
}

// SortEntries sorts directory entries in git tree order: byte-wise on the
// entry name, with directories compared as if their name had a trailing "/".
func SortEntries(entries []DirectoryEntry) {
	key := func(e DirectoryEntry) string {
		if e.Type == EntryDir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool {
		return key(entries[i]) < key(entries[j])
	})
}

// NewDirectory builds a Directory from its entries, sorting them into git
// tree order and computing the git tree hash.
func NewDirectory(entries []DirectoryEntry) (*Directory, error) {
	SortEntries(entries)

	var body bytes.Buffer
	for _, e := range entries {
		raw, err := e.Target.Bytes()
		if err != nil {
			return nil, fmt.Errorf("directory entry %q: %w", e.Name, err)
		}
		fmt.Fprintf(&body, "%o %s\x00", e.Perms, e.Name)
		body.Write(raw)
	}

	return &Directory{
		ID:      hashObject("tree", body.Bytes()),
		Entries: entries,
	}, nil
}

// gitDate formats a timestamp the way git commit manifests do.
func gitDate(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10) + " " + t.Format("-0700")
}

// ComputeRevisionID computes the revision's id over a git-commit-compatible
// manifest. The synthetic flag and metadata are carried as extra headers, so
// they participate in the identity.
func ComputeRevisionID(r *Revision) ID {
	var body bytes.Buffer
	fmt.Fprintf(&body, "tree %s\n", r.Directory)
	for _, p := range r.Parents {
		fmt.Fprintf(&body, "parent %s\n", p)
	}
	fmt.Fprintf(&body, "author %s %s\n", r.Author, gitDate(r.Date))
	fmt.Fprintf(&body, "committer %s %s\n", r.Committer, gitDate(r.CommitterDate))
	if r.Synthetic {
		fmt.Fprintf(&body, "synthetic %s\n", r.Type)
	}
	for _, k := range sortedKeys(r.Metadata) {
		fmt.Fprintf(&body, "x-%s %s\n", k, r.Metadata[k])
	}
	fmt.Fprintf(&body, "\n%s", r.Message)
	return hashObject("commit", body.Bytes())
}

// ComputeReleaseID computes the release's id over a git-tag-compatible
// manifest.
func ComputeReleaseID(r *Release) ID {
	objType := "commit"
	if r.TargetType == TypeRelease {
		objType = "tag"
	}
	var body bytes.Buffer
	fmt.Fprintf(&body, "object %s\n", r.Target)
	fmt.Fprintf(&body, "type %s\n", objType)
	fmt.Fprintf(&body, "tag %s\n", r.Name)
	fmt.Fprintf(&body, "tagger %s %s\n", r.Author, gitDate(r.Date))
	fmt.Fprintf(&body, "\n%s", r.Message)
	return hashObject("tag", body.Bytes())
}

// ComputeSnapshotID computes the snapshot's id over its sorted branch list.
// Each branch contributes "<target_type> <name>\x00<len>:<target>", where the
// target is the raw 20-byte digest for revision and release branches, the
// target branch name for aliases, and empty for dangling branches. The rule
// is total, so two snapshots with equal branch mappings always hash alike.
func ComputeSnapshotID(branches map[string]Branch) (ID, error) {
	names := make([]string, 0, len(branches))
	for name := range branches {
		names = append(names, name)
	}
	sort.Strings(names)

	var body bytes.Buffer
	for _, name := range names {
		b := branches[name]
		var target []byte
		switch b.Type {
		case TargetRevision, TargetRelease:
			raw, err := ID(b.Target).Bytes()
			if err != nil {
				return "", fmt.Errorf("branch %q: %w", name, err)
			}
			target = raw
		case TargetAlias:
			target = []byte(b.Target)
		case TargetDangling:
			target = nil
		default:
			return "", fmt.Errorf("branch %q: unknown target type %q", name, b.Type)
		}
		fmt.Fprintf(&body, "%s %s\x00%d:", b.Type, name, len(target))
		body.Write(target)
	}

	return hashObject("snapshot", body.Bytes()), nil
}

// NewSnapshot builds a Snapshot from a branch mapping, computing its id.
func NewSnapshot(branches map[string]Branch) (*Snapshot, error) {
	id, err := ComputeSnapshotID(branches)
	if err != nil {
		return nil, err
	}
	return &Snapshot{ID: id, Branches: branches}, nil
}

// HashManifest digests an arbitrary extrinsic-identity manifest (extid).
func HashManifest(manifest []byte) ID {
	h := sha1.Sum(manifest)
	return ID(hex.EncodeToString(h[:]))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CompareVersions orders two version labels. Dotted numeric segments compare
// numerically, everything else byte-wise, and a shorter prefix sorts before
// its extensions ("1.2" < "1.2.1"). Returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		default:
			if as[i] != bs[i] {
				if as[i] < bs[i] {
					return -1
				}
				return 1
			}
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}
