package fetcher

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func writeTarGz(t *testing.T, entries []tarEntry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating archive: %v", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode}
		switch {
		case e.link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.link
		case e.dir:
			hdr.Typeflag = tar.TypeDir
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing header %s: %v", e.name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("writing body %s: %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}
	return path
}

type tarEntry struct {
	name string
	body string
	mode int64
	dir  bool
	link string
}

func TestExtractTarGz(t *testing.T) {
	archive := writeTarGz(t, []tarEntry{
		{name: "pkg-1.0/", dir: true, mode: 0755},
		{name: "pkg-1.0/README", body: "hello\n", mode: 0644},
		{name: "pkg-1.0/bin/", dir: true, mode: 0755},
		{name: "pkg-1.0/bin/run", body: "#!/bin/sh\n", mode: 0755},
		{name: "pkg-1.0/link", link: "README", mode: 0777},
	})

	destDir := t.TempDir()
	root, err := NewArchiveExtractor().Extract(archive, destDir)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// Single top-level directory becomes the tree root.
	if root != filepath.Join(destDir, "pkg-1.0") {
		t.Errorf("root = %s, want %s", root, filepath.Join(destDir, "pkg-1.0"))
	}

	data, err := os.ReadFile(filepath.Join(root, "README"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("README = %q, want %q", data, "hello\n")
	}

	info, err := os.Stat(filepath.Join(root, "bin", "run"))
	if err != nil {
		t.Fatalf("stat bin/run: %v", err)
	}
	if info.Mode()&0100 == 0 {
		t.Error("expected bin/run to be executable")
	}

	link, err := os.Readlink(filepath.Join(root, "link"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if link != "README" {
		t.Errorf("link target = %s, want README", link)
	}
}

func TestExtractMultiRoot(t *testing.T) {
	archive := writeTarGz(t, []tarEntry{
		{name: "a.txt", body: "a", mode: 0644},
		{name: "b.txt", body: "b", mode: 0644},
	})

	destDir := t.TempDir()
	root, err := NewArchiveExtractor().Extract(archive, destDir)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if root != destDir {
		t.Errorf("root = %s, want %s", root, destDir)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	archive := writeTarGz(t, []tarEntry{
		{name: "../escape.txt", body: "nope", mode: 0644},
	})

	if _, err := NewArchiveExtractor().Extract(archive, t.TempDir()); err == nil {
		t.Error("expected error for path traversal entry")
	}
}

func TestExtractZip(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "archive.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("creating zip: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("pkg-2.0/data.txt")
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	if _, err := w.Write([]byte("zipped")); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	f.Close()

	destDir := t.TempDir()
	root, err := NewArchiveExtractor().Extract(zipPath, destDir)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "data.txt"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(data) != "zipped" {
		t.Errorf("data.txt = %q, want %q", data, "zipped")
	}
}
