package docsmirror

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"vibesync.dev/syncorch/internal/errkind"
	"vibesync.dev/syncorch/model"
)

// bookDir returns the local root a book's markdown tree lives under:
// {WorkDir}/{project}/{docsSubdir}/{bookSlug} (spec §4.8 layout).
func (m *Mirror) bookDir(project model.ProjectCode, bookSlug string) string {
	return filepath.Join(m.WorkDir, string(project), m.Config.docsSubdir(), bookSlug)
}

// walkMarkdown returns every *.md file under dir, relative to dir,
// skipping dot-directories (spec §4.8 "Directory import scan").
func walkMarkdown(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, errkind.New(errkind.Retryable, "docsmirror.walk", err)
	}
	return out, nil
}

// chapterSlugOf returns the first path segment of a book-relative path,
// or "" for a top-level page (spec §4.8 "chapterSlug/]*.md").
func chapterSlugOf(localPath string) string {
	dir := filepath.Dir(localPath)
	if dir == "." {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(dir), "/")
	return parts[0]
}

// readLocalFile reads a book-relative path. A missing file is reported
// via os.IsNotExist on the returned error, not collapsed to an empty
// slice, so callers can distinguish "deleted" from "empty".
func readLocalFile(bookDir, localPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(bookDir, localPath))
}

// writeLocalFile writes content to a book-relative path, creating parent
// directories as needed (spec §4.8 export: remote content replaces local
// file contents).
func writeLocalFile(bookDir, localPath string, content []byte) error {
	full := filepath.Join(bookDir, localPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errkind.New(errkind.Retryable, "docsmirror.write", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return errkind.New(errkind.Retryable, "docsmirror.write", err)
	}
	return nil
}

func removeLocalFile(bookDir, localPath string) error {
	err := os.Remove(filepath.Join(bookDir, localPath))
	if err != nil && !os.IsNotExist(err) {
		return errkind.New(errkind.Retryable, "docsmirror.remove", err)
	}
	return nil
}

// extractTitle returns the first top-level "# Title" heading, requiring
// it to be the first non-blank line (spec §4.8: "require a top-level #
// Title as the first H1").
func extractTitle(content []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#")), true
		}
		return "", false
	}
	return "", false
}

// slugify produces a filesystem- and URL-safe name from a Docs page
// title, used to name the local file a freshly exported remote page is
// written to.
func slugify(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "untitled"
	}
	return out
}
