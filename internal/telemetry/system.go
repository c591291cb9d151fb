package telemetry

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemInfo describes the host the session runs on
type SystemInfo struct {
	Hostname      string `json:"hostname"`
	OS            string `json:"os"`
	Architecture  string `json:"arch"`
	Platform      string `json:"platform,omitempty"`
	PlatformVer   string `json:"platformVersion,omitempty"`
	KernelVersion string `json:"kernelVersion,omitempty"`
	NumCPU        int    `json:"numCpu"`
	GoVersion     string `json:"goVersion"`
	ProcessRSS    uint64 `json:"processRss,omitempty"`
}

// CollectSystemInfo gathers host details. Fields gopsutil cannot read on
// the platform are left empty.
func CollectSystemInfo() SystemInfo {
	info := SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}

	if hostInfo, err := host.Info(); err == nil {
		info.Hostname = hostInfo.Hostname
		info.Platform = hostInfo.Platform
		info.PlatformVer = hostInfo.PlatformVersion
		info.KernelVersion = hostInfo.KernelVersion
	} else if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil { //nolint:gosec // pid fits in int32
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			info.ProcessRSS = mem.RSS
		}
	}
	return info
}

// Status is the snapshot served by the status endpoint
type Status struct {
	SessionID       string        `json:"sessionId"`
	StartedAt       time.Time     `json:"startedAt"`
	Uptime          time.Duration `json:"uptimeNs"`
	Device          string        `json:"device,omitempty"`
	Capturing       bool          `json:"capturing"`
	BufferedSamples int           `json:"bufferedSamples"`
	PendingSamples  int           `json:"pendingSamples"`
	BlocksAccepted  uint64        `json:"blocksAccepted"`
	BlocksDiscarded uint64        `json:"blocksDiscarded"`
	Resets          uint64        `json:"resets"`
	Utterances      int           `json:"utterances"`
	ArchiveBytes    uint32        `json:"archiveBytes"`
	LastText        string        `json:"lastText,omitempty"`
	System          SystemInfo    `json:"system"`
}
