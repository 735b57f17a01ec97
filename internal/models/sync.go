package models

// SyncConfig represents a sync request coming from the desktop host
type SyncConfig struct {
	Provider  string `json:"provider"`
	APIKey    string `json:"api_key"`
	InputPath string `json:"input_path,omitempty"`
	Cookie    string `json:"cookie,omitempty"`
	OutputDir string `json:"output_dir"`
	Model     string `json:"model,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Redacted returns a copy safe to log or trace
func (c SyncConfig) Redacted() SyncConfig {
	if c.APIKey != "" {
		c.APIKey = "***"
	}
	if c.Cookie != "" {
		c.Cookie = "***"
	}
	return c
}

// SyncResult is what the desktop host receives back after a sync
type SyncResult struct {
	FilesCreated uint32   `json:"files_created"`
	Categories   []string `json:"categories"`
	OutputDir    string   `json:"output_dir"`
}

// SyncProgress reports the pipeline step currently running
type SyncProgress struct {
	Step   int    `json:"step"`
	Total  int    `json:"total"`
	Detail string `json:"detail"`
}
