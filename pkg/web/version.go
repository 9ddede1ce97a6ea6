package web

import "sync/atomic"

// BuildInfo identifies the running binary in /api/status
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

var buildInfo atomic.Pointer[BuildInfo]

func init() {
	buildInfo.Store(&BuildInfo{Version: "dev", Commit: "unknown", BuildTime: "unknown"})
}

// SetBuildInfo records the version reported by the API
func SetBuildInfo(info BuildInfo) {
	buildInfo.Store(&info)
}

// CurrentBuildInfo returns the recorded version
func CurrentBuildInfo() BuildInfo {
	return *buildInfo.Load()
}
