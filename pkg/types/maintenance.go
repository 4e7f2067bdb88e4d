package types

// MaintenanceTask schedules one named service task on a cron expression.
type MaintenanceTask struct {
	Name        string `json:"name"`
	Schedule    string `json:"schedule"`
	TaskName    string `json:"task"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// MaintenanceConfig represents the maintenance scheduler configuration
type MaintenanceConfig struct {
	MaxConcurrent int               `json:"max_concurrent"`
	Predefined    []MaintenanceTask `json:"predefined"`
}
