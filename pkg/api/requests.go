package api

// CreateConfigurationRequest asks for a new configuration for a user.
type CreateConfigurationRequest struct {
	UserID  int64  `json:"user_id"`
	Country string `json:"country"`
	Months  int    `json:"months"`
}

// SyncConfigurationsRequest triggers reconciliation. A zero UserID requests a
// full-fleet sweep.
type SyncConfigurationsRequest struct {
	UserID int64 `json:"user_id,omitempty"`
}
