package model

import "strings"

// repoPathPrefixes are the recognized description prefixes a Project's
// repoPath is parsed from, first match wins (spec §3).
var repoPathPrefixes = []string{"Filesystem:", "Path:", "Directory:", "Location:"}

// Project is the logical project entity spec §3 describes.
type Project struct {
	Identifier  ProjectCode
	Name        string
	Description string
	RepoPath    string // absolute path, parsed from Description; "" if none
}

// ParseRepoPath extracts an absolute repoPath from a project description
// using the recognized prefixes, first match wins. It strips trailing
// ",;." and requires the result to start with "/".
func ParseRepoPath(description string) string {
	for _, prefix := range repoPathPrefixes {
		idx := strings.Index(description, prefix)
		if idx == -1 {
			continue
		}
		rest := strings.TrimSpace(description[idx+len(prefix):])
		// Take up to the end of line/description.
		if nl := strings.IndexAny(rest, "\r\n"); nl != -1 {
			rest = rest[:nl]
		}
		rest = strings.TrimSpace(rest)
		rest = strings.TrimRight(rest, ",;.")
		if strings.HasPrefix(rest, "/") {
			return rest
		}
		return ""
	}
	return ""
}

// NewProject builds a Project, deriving RepoPath from Description.
func NewProject(identifier ProjectCode, name, description string) Project {
	return Project{
		Identifier:  identifier,
		Name:        name,
		Description: description,
		RepoPath:    ParseRepoPath(description),
	}
}
