package api

import "time"

// CreateConfigurationResponse represents a successfully provisioned
// configuration. Warnings list best-effort steps that were skipped; the
// configuration itself is usable.
type CreateConfigurationResponse struct {
	ClientUUID     string    `json:"client_uuid"`
	Link           string    `json:"link"`
	ServerID       int64     `json:"server_id"`
	ExpirationDate time.Time `json:"expiration_date"`
	Price          int       `json:"price"`
	Warnings       []string  `json:"warnings,omitempty"`
}

// SyncConfigurationsResponse summarizes a reconciliation run.
type SyncConfigurationsResponse struct {
	Users    int     `json:"users,omitempty"`
	Inserted int     `json:"inserted"`
	Updated  int     `json:"updated"`
	Deleted  int     `json:"deleted"`
	Failures []int64 `json:"failed_user_ids,omitempty"`
}

// ConfigurationInfo represents one configuration row for listing operations.
type ConfigurationInfo struct {
	ClientUUID     string    `json:"client_uuid"`
	ServerID       int64     `json:"server_id"`
	Link           string    `json:"link"`
	Months         int       `json:"months"`
	ExpirationDate time.Time `json:"expiration_date"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConfigurationsListResponse represents the response for listing a user's
// configurations.
type ConfigurationsListResponse struct {
	Configurations []ConfigurationInfo `json:"configurations"`
	TotalCount     int                 `json:"total_count"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
