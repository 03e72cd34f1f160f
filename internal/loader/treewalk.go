package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"ingot/internal/model"
)

// Git filemodes for directory entries.
const (
	permFile       = 0100644
	permExecutable = 0100755
	permSymlink    = 0120000
	permDir        = 040000
	// permSubmodule is the filemode carried by rev (gitlink) entries. The
	// tree walk never emits it: a tarball has no pinned revision id to
	// point at.
	permSubmodule = 0160000
)

// Submodule is a reference to another origin discovered inside an ingested
// tree.
type Submodule struct {
	Name string
	Path string
	URL  string
}

// TreeImporter converts an on-disk directory tree into Content and Directory
// objects, pushing them through the write proxies bottom-up so every entry
// target is stored (or queued) before the directory that references it.
//
// Along the way it collects submodule declarations (.gitmodules files) so
// the orchestrator can schedule the referenced origins for ingestion.
type TreeImporter struct {
	store  ObjectStore
	logger Logger

	written    WriteSummary
	submodules []Submodule
}

// NewTreeImporter creates an importer writing through store.
func NewTreeImporter(store ObjectStore, logger Logger) *TreeImporter {
	return &TreeImporter{
		store:   store,
		logger:  logger,
		written: WriteSummary{},
	}
}

// Written reports what the importer's adds flushed to the archive so far.
func (t *TreeImporter) Written() WriteSummary { return t.written }

// Submodules returns the submodule declarations discovered during imports.
func (t *TreeImporter) Submodules() []Submodule { return t.submodules }

// ImportTree walks root and returns the id of the resulting root directory.
func (t *TreeImporter) ImportTree(root string) (model.ID, error) {
	dir, err := t.importDirectory(root)
	if err != nil {
		return "", err
	}
	return dir.ID, nil
}

func (t *TreeImporter) importDirectory(path string) (*model.Directory, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", path, err)
	}

	entries := make([]model.DirectoryEntry, 0, len(dirents))
	for _, de := range dirents {
		child := filepath.Join(path, de.Name())

		switch {
		case de.IsDir():
			sub, err := t.importDirectory(child)
			if err != nil {
				return nil, err
			}
			entries = append(entries, model.DirectoryEntry{
				Name:   de.Name(),
				Type:   model.EntryDir,
				Perms:  permDir,
				Target: sub.ID,
			})

		case de.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(child)
			if err != nil {
				return nil, fmt.Errorf("reading symlink %s: %w", child, err)
			}
			content := model.NewContent([]byte(target))
			if err := t.addContent(content); err != nil {
				return nil, err
			}
			entries = append(entries, model.DirectoryEntry{
				Name:   de.Name(),
				Type:   model.EntryFile,
				Perms:  permSymlink,
				Target: content.Sha1Git,
			})

		case de.Type().IsRegular():
			data, err := os.ReadFile(child)
			if err != nil {
				return nil, fmt.Errorf("reading file %s: %w", child, err)
			}
			content := model.NewContent(data)
			if err := t.addContent(content); err != nil {
				return nil, err
			}

			perms := uint32(permFile)
			if info, err := de.Info(); err == nil && info.Mode()&0100 != 0 {
				perms = permExecutable
			}
			entries = append(entries, model.DirectoryEntry{
				Name:   de.Name(),
				Type:   model.EntryFile,
				Perms:  perms,
				Target: content.Sha1Git,
			})

			if de.Name() == ".gitmodules" {
				t.collectSubmodules(data)
			}

		default:
			// Sockets, devices and the like have no place in the
			// object graph.
			t.logger.Warn("skipping irregular file", "path", child)
		}
	}

	dir, err := model.NewDirectory(entries)
	if err != nil {
		return nil, fmt.Errorf("building directory for %s: %w", path, err)
	}

	summary, err := t.store.DirectoryAdd([]*model.Directory{dir})
	if err != nil {
		return nil, fmt.Errorf("storing directory for %s: %w", path, err)
	}
	t.written.Merge(summary)

	return dir, nil
}

func (t *TreeImporter) addContent(c *model.Content) error {
	summary, err := t.store.ContentAdd([]*model.Content{c})
	if err != nil {
		return fmt.Errorf("storing content %s: %w", c.Sha1Git, err)
	}
	t.written.Merge(summary)
	return nil
}

func (t *TreeImporter) collectSubmodules(data []byte) {
	subs, err := ParseGitmodules(data)
	if err != nil {
		// A malformed .gitmodules never fails the visit; the tree is
		// archived as-is and the references are simply not followed.
		t.logger.Warn("unparseable .gitmodules", "err", err)
		return
	}
	t.submodules = append(t.submodules, subs...)
}
