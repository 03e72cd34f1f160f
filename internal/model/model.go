// Package model defines the content-addressed object graph stored in the
// archive: contents, directories, revisions, releases and snapshots, plus the
// origin/visit bookkeeping records that tie an ingestion run to its result.
//
// Graph objects are immutable once created. Their IDs are git-compatible
// SHA-1 digests computed over canonical manifests (see hash.go), so a tree of
// files ingested from a tarball hashes to the same directory id git would
// assign to it.
package model

import (
	"encoding/hex"
	"fmt"
	"time"
)

// ID is a hex-encoded SHA-1 digest identifying a graph object.
type ID string

// Bytes returns the raw 20-byte digest.
func (id ID) Bytes() ([]byte, error) {
	b, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("invalid object id %q: %w", id, err)
	}
	if len(b) != 20 {
		return nil, fmt.Errorf("invalid object id %q: expected 20 bytes, got %d", id, len(b))
	}
	return b, nil
}

// IDFromBytes converts a raw 20-byte digest into an ID.
func IDFromBytes(b []byte) ID {
	return ID(hex.EncodeToString(b))
}

// ObjectType identifies the kind of graph object being stored.
type ObjectType string

const (
	TypeContent   ObjectType = "content"
	TypeDirectory ObjectType = "directory"
	TypeRevision  ObjectType = "revision"
	TypeRelease   ObjectType = "release"
	TypeSnapshot  ObjectType = "snapshot"
)

// Person identifies an author or committer.
type Person struct {
	Name  string
	Email string
}

// String formats the person the way git does: "Name <email>".
func (p Person) String() string {
	return fmt.Sprintf("%s <%s>", p.Name, p.Email)
}

// Content is an immutable blob of bytes. Sha1Git (the git blob hash) is the
// primary key in the object graph; Sha256 and Length are auxiliary digests.
// Data may be nil when the payload is already known to be present in the
// archive and need not be re-transmitted.
type Content struct {
	Sha1Git ID
	Sha256  string
	Length  int64
	Data    []byte
}

// EntryType is the kind of object a directory entry points at.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
	// EntryRev marks a VCS submodule: the target is a revision in another
	// origin, pinned by the parent repository. Tarball imports never produce
	// rev entries — an exported tree carries no pinned revision id, so
	// submodules are discovered via .gitmodules and scheduled as separate
	// origins instead — but stored directories containing them are accepted.
	EntryRev EntryType = "rev"
)

// DirectoryEntry is one named member of a directory.
type DirectoryEntry struct {
	Name   string
	Type   EntryType
	Perms  uint32 // git filemode (e.g. 0100644, 040000, 0160000)
	Target ID
}

// Directory is an ordered set of named entries, identified by its git tree
// hash. Entries must be kept in git tree sort order (see SortEntries).
type Directory struct {
	ID      ID
	Entries []DirectoryEntry
}

// RevisionType tags how a revision came to exist in the source system.
type RevisionType string

const (
	RevisionGit RevisionType = "git"
	// RevisionTar marks a revision synthesized from a package release that
	// never existed as a commit upstream.
	RevisionTar RevisionType = "tar"
)

// Revision is a point-in-time capture of a directory tree.
// Synthetic is true when the revision was fabricated from a package release
// rather than observed in the source system. Metadata keys are folded into
// the id manifest so that two revisions differing only in metadata get
// distinct ids.
type Revision struct {
	ID            ID
	Directory     ID
	Author        Person
	Committer     Person
	Date          time.Time
	CommitterDate time.Time
	Message       string
	Parents       []ID
	Type          RevisionType
	Synthetic     bool
	Metadata      map[string]string
}

// Release is a named, dated pointer to another object, usually a revision.
type Release struct {
	ID         ID
	Name       string
	Target     ID
	TargetType ObjectType
	Author     Person
	Date       time.Time
	Message    string
}

// TargetType is the kind of object a snapshot branch points at.
type TargetType string

const (
	TargetRevision TargetType = "revision"
	TargetRelease  TargetType = "release"
	// TargetAlias points at another branch in the same snapshot by name.
	TargetAlias TargetType = "alias"
	// TargetDangling records a branch whose target could not be resolved.
	TargetDangling TargetType = "dangling"
)

// Branch is one named pointer in a snapshot. For revision and release
// targets, Target holds the hex object id; for aliases it holds the name of
// the target branch; for dangling branches it is empty.
type Branch struct {
	Type   TargetType
	Target string
}

// HeadBranch is the conventional name of the default branch alias.
const HeadBranch = "HEAD"

// Snapshot is an immutable mapping from branch name to branch target,
// representing the observable state of an origin at visit time.
type Snapshot struct {
	ID       ID
	Branches map[string]Branch
}

// Origin is a URL-identified external source to be ingested.
type Origin struct {
	URL string
}

// OriginVisit is one ingestion attempt against an origin. Visit is a
// per-origin sequence number assigned by the archive.
type OriginVisit struct {
	Origin string
	Visit  int
	Type   string
	Date   time.Time
}

// VisitStatus enumerates the lifecycle states of a visit.
type VisitStatus string

const (
	VisitCreated  VisitStatus = "created"
	VisitOngoing  VisitStatus = "ongoing"
	VisitFull     VisitStatus = "full"
	VisitPartial  VisitStatus = "partial"
	VisitNotFound VisitStatus = "not_found"
	VisitFailed   VisitStatus = "failed"
)

// OriginVisitStatus is one entry in a visit's append-only status history.
// The latest status for an origin is the one with the greatest (date, visit)
// ordering.
type OriginVisitStatus struct {
	Origin   string
	Visit    int
	Date     time.Time
	Status   VisitStatus
	Snapshot *ID
}

// ExtID maps an externally-derived manifest digest to the revision that was
// created for it, so an unchanged artifact can be recognized across visits
// without re-downloading or re-hashing its bytes.
type ExtID struct {
	Manifest ID
	Revision ID
}
