package loader

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"ingot/internal/model"
)

// Artifact is the declarative descriptor for one downloadable artifact of an
// origin, as configured by the operator (typically in a TOML manifest).
type Artifact struct {
	Version   string            `toml:"version"`
	URL       string            `toml:"url"`
	Fallback  []string          `toml:"fallback,omitempty"`
	Filename  string            `toml:"filename,omitempty"`
	Length    int64             `toml:"length,omitempty"`
	Time      time.Time         `toml:"time,omitempty"`
	Checksums map[string]string `toml:"checksums,omitempty"`

	// Optional release metadata; when set, the version's branch points at
	// a Release object wrapping the synthesized revision.
	ReleaseName    string `toml:"release_name,omitempty"`
	ReleaseMessage string `toml:"release_message,omitempty"`
	ReleaseAuthor  string `toml:"release_author,omitempty"`
	ReleaseEmail   string `toml:"release_email,omitempty"`
}

// defaultIdentity signs synthesized revisions that have no upstream author.
var defaultIdentity = model.Person{Name: "ingot", Email: "robot@ingot"}

// TarballSource ingests origins whose releases are plain downloadable
// archives with no queryable metadata endpoint: the artifact list is
// declared up front and every revision is synthesized.
type TarballSource struct {
	origin    string
	artifacts []Artifact

	// Compare orders version labels for default-version selection. The
	// rule is deliberately pluggable; ties go to the most recently
	// declared version. Defaults to model.CompareVersions.
	Compare func(a, b string) int
}

var _ Source = (*TarballSource)(nil)

// NewTarballSource creates a source over the declared artifacts.
func NewTarballSource(origin string, artifacts []Artifact) *TarballSource {
	return &TarballSource{
		origin:    origin,
		artifacts: artifacts,
		Compare:   model.CompareVersions,
	}
}

// Versions returns the distinct version labels in declaration order.
func (s *TarballSource) Versions(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var versions []string
	for _, a := range s.artifacts {
		if a.Version == "" {
			return nil, fmt.Errorf("artifact %s has no version", a.URL)
		}
		if !seen[a.Version] {
			seen[a.Version] = true
			versions = append(versions, a.Version)
		}
	}
	return versions, nil
}

func (s *TarballSource) PackageInfo(version string) ([]*PackageInfo, error) {
	var infos []*PackageInfo
	for _, a := range s.artifacts {
		if a.Version != version {
			continue
		}
		info := &PackageInfo{
			Version: version,
			Download: DownloadSpec{
				URL:       a.URL,
				Fallback:  a.Fallback,
				Filename:  a.Filename,
				Checksums: a.Checksums,
			},
			Length: a.Length,
			Time:   a.Time,
		}
		if a.ReleaseMessage != "" || a.ReleaseName != "" {
			name := a.ReleaseName
			if name == "" {
				name = version
			}
			author := defaultIdentity
			if a.ReleaseAuthor != "" {
				author = model.Person{Name: a.ReleaseAuthor, Email: a.ReleaseEmail}
			}
			info.Release = &ReleaseInfo{
				Name:    name,
				Message: a.ReleaseMessage,
				Author:  author,
				Date:    a.Time,
			}
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no artifacts declared for version %s", version)
	}
	return infos, nil
}

// ExtIDManifest renders the canonical identity manifest: the pinned
// checksums when declared (strongest identity available without downloading),
// otherwise the time+length+version+url template.
func (s *TarballSource) ExtIDManifest(info *PackageInfo) []byte {
	var buf bytes.Buffer
	if len(info.Download.Checksums) > 0 {
		algos := make([]string, 0, len(info.Download.Checksums))
		for algo := range info.Download.Checksums {
			algos = append(algos, algo)
		}
		sort.Strings(algos)
		for _, algo := range algos {
			fmt.Fprintf(&buf, "%s:%s\n", algo, info.Download.Checksums[algo])
		}
		return buf.Bytes()
	}
	fmt.Fprintf(&buf, "%s %d %s %s", info.Time.UTC().Format(time.RFC3339), info.Length, info.Version, info.Download.URL)
	return buf.Bytes()
}

func (s *TarballSource) BuildRevision(info *PackageInfo, root model.ID, visitDate time.Time) (*model.Revision, error) {
	date := info.Time
	if date.IsZero() {
		date = visitDate
	}
	return &model.Revision{
		Directory:     root,
		Author:        defaultIdentity,
		Committer:     defaultIdentity,
		Date:          date.UTC(),
		CommitterDate: date.UTC(),
		Message:       fmt.Sprintf("synthetic revision for tarball import of version %s", info.Version),
		Type:          model.RevisionTar,
		Synthetic:     true,
		Metadata: map[string]string{
			"version": info.Version,
			"url":     info.Download.URL,
		},
	}, nil
}

// DefaultVersion returns the highest version under the configured ordering;
// equal labels resolve to the one declared last, keeping the choice stable
// for unchanged inputs.
func (s *TarballSource) DefaultVersion(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if s.Compare(v, best) >= 0 {
			best = v
		}
	}
	return best
}
