// Package gitremote resolves git branch names to commit SHAs by querying a
// remote with ls-remote, without cloning.
//
// Every call re-queries the remote; nothing is cached and nothing is written
// to the local filesystem.
package gitremote
