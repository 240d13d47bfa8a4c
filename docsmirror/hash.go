package docsmirror

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// frontMatterDelim is the YAML front-matter fence BookStack-style export
// markdown wraps around page metadata.
const frontMatterDelim = "---"

// hashContent is the per-page identity primitive spec §4.8 names: content
// equality between local and remote is decided by comparing SHA-256
// digests of the body only, never by timestamp alone. A leading YAML
// front-matter block is stripped first so a round trip through the Docs
// platform's export/import path — which stamps its own metadata block,
// including a modification timestamp, ahead of the body — never shows up
// as a content change by itself.
func hashContent(content []byte) string {
	sum := sha256.Sum256(stripFrontMatter(content))
	return hex.EncodeToString(sum[:])
}

// stripFrontMatter removes a leading "---\n...\n---\n" block, returning
// content unchanged if it doesn't start with one.
func stripFrontMatter(content []byte) []byte {
	lines := bytes.SplitAfter(content, []byte("\n"))
	if len(lines) == 0 || !isDelimLine(lines[0]) {
		return content
	}
	for i := 1; i < len(lines); i++ {
		if isDelimLine(lines[i]) {
			return bytes.Join(lines[i+1:], nil)
		}
	}
	return content
}

func isDelimLine(line []byte) bool {
	return string(bytes.TrimSpace(line)) == frontMatterDelim
}
