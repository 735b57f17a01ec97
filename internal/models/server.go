package models

// SystemResources represents host resource usage reported by /server_info
type SystemResources struct {
	CPUCount      int     `json:"cpu_count"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskTotal     uint64  `json:"disk_total"`
	DiskUsed      uint64  `json:"disk_used"`
	DiskPercent   float64 `json:"disk_percent"`
}

// ServerInfoResponse represents the server info response
type ServerInfoResponse struct {
	Version   string          `json:"version"`
	Uptime    float64         `json:"uptime"`
	IdleTime  float64         `json:"idle_time"`
	Syncing   bool            `json:"syncing"`
	Resources SystemResources `json:"resources"`
}

// ErrorResponse is the body returned for any failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// VaultListing represents the entries of a generated vault directory
type VaultListing struct {
	OutputDir string   `json:"output_dir"`
	Entries   []string `json:"entries"`
}
