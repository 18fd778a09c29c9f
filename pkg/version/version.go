package version

import (
	"encoding/json"
	"fmt"
	"runtime"
)

var (
	// Version is the current version of curate.
	// Set at build time via -ldflags
	Version = "dev"

	// GitCommit is the git commit SHA that was built
	GitCommit = "unknown"

	// BuildTime is when the binary was built
	BuildTime = "unknown"
)

// Info represents version information
type Info struct {
	Version          string `json:"version"`
	GitCommit        string `json:"gitCommit"`
	BuildTime        string `json:"buildTime"`
	GoVersion        string `json:"goVersion"`
	ConverterVersion int    `json:"converterVersion"`
}

// Get returns the version information. converterVersion is passed in so the
// package stays free of domain imports.
func Get(converterVersion int) Info {
	return Info{
		Version:          Version,
		GitCommit:        GitCommit,
		BuildTime:        BuildTime,
		GoVersion:        runtime.Version(),
		ConverterVersion: converterVersion,
	}
}

// String returns the string representation of version info
func (i Info) String() string {
	return fmt.Sprintf("Version: %s, GitCommit: %s, BuildTime: %s, GoVersion: %s, ConverterVersion: %d",
		i.Version, i.GitCommit, i.BuildTime, i.GoVersion, i.ConverterVersion)
}

// JSON returns the JSON representation of version info
func (i Info) JSON() (string, error) {
	bytes, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
