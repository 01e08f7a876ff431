package model

import "regexp"

// ShaPattern matches a full lowercase hex git commit SHA
var ShaPattern = regexp.MustCompile(`^[a-f0-9]{40}$`)

// RemoteRef is a branch resolved to its tip commit on a git remote
type RemoteRef struct {
	URL    string `json:"url" yaml:"url"`
	Branch string `json:"branch" yaml:"branch"`
	SHA    string `json:"sha" yaml:"sha"`
}

// IsValidSHA reports whether s is a 40 character lowercase hex SHA
func IsValidSHA(s string) bool {
	return ShaPattern.MatchString(s)
}
