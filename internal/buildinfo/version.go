package buildinfo

import "runtime/debug"

// Version returns the module version of the releasecheck binary. Local builds
// report the VCS revision instead, suffixed with "-dirty" for modified trees.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	var revision string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if revision == "" {
		return "dev"
	}
	if modified {
		revision += "-dirty"
	}
	return revision
}
