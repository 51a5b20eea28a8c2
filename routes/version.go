package routes

import (
	"net/http"
	"runtime"
	"runtime/debug"

	"imagegen/logger"
)

// Build-time variables (injected by ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionResponse represents the version information response
type VersionResponse struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	GitCommit string `json:"git_commit,omitempty"`
}

// BuildInfo fills unset ldflags values from the embedded VCS stamp.
func BuildInfo() VersionResponse {
	resp := VersionResponse{
		Version:   Version,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		GitCommit: GitCommit,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if resp.GitCommit == "unknown" {
					resp.GitCommit = setting.Value
				}
			case "vcs.time":
				if resp.BuildTime == "unknown" {
					resp.BuildTime = setting.Value
				}
			}
		}
	}
	return resp
}

// VersionHandler provides version information about the build
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Version request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)
	writeJSON(w, http.StatusOK, BuildInfo())
}
