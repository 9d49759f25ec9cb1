package audit

import (
	"runtime/debug"
	"sync"
)

type moduleInfo struct {
	path    string
	version string
}

var mainModule = sync.OnceValue(func() moduleInfo {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return moduleInfo{}
	}
	m := moduleInfo{path: bi.Main.Path, version: bi.Main.Version}
	if m.version == "" || m.version == "(devel)" {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				m.version = s.Value
			}
		}
	}
	return m
})

// MainModule is the path and version of the running binary's main module. Development
// builds report the VCS revision as their version.
func MainModule() (path, version string) {
	m := mainModule()
	return m.path, m.version
}
