package db

import "time"

// User is the minimal owner record the engine needs. Full profiles live in the
// CRUD layer; the engine only checks existence and iterates the id set during
// fleet-wide reconciliation.
type User struct {
	ID        int64
	Username  string
	CreatedAt time.Time
}

// Server describes one VPS node running the remote panel. Created by an
// administrative import, never mutated by the provisioning path.
type Server struct {
	ID          int64
	Country     string
	Host        string
	SSHPort     int
	SSHUsername string
	SSHPassword string
	MaxUsers    int
	PanelPort   int
	PanelURL    string
	CreatedAt   time.Time
}

// UserConfiguration is one provisioned VPN client credential. ClientUUID is
// unique across the whole fleet.
type UserConfiguration struct {
	ID             int64
	UserID         int64
	ServerID       int64
	ClientUUID     string
	ConfigLink     string
	Months         int
	ExpirationDate time.Time
	CreatedAt      time.Time
}
