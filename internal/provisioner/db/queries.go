package db

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the common interface between *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries executes all database operations against a DBTX.
type Queries struct {
	db DBTX
}

// New creates a Queries instance backed by the given connection or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Querier defines all query operations.
type Querier interface {
	CreateUser(ctx context.Context, username string) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	ListUsers(ctx context.Context) ([]User, error)

	CreateServer(ctx context.Context, params CreateServerParams) (Server, error)
	GetServer(ctx context.Context, id int64) (Server, error)
	GetServerByAddress(ctx context.Context, host string, sshPort int) (Server, error)
	ListServers(ctx context.Context) ([]Server, error)
	ListServersByCountry(ctx context.Context, country string) ([]Server, error)

	CreateConfiguration(ctx context.Context, params CreateConfigurationParams) (UserConfiguration, error)
	GetConfigurationByClientUUID(ctx context.Context, clientUUID string) (UserConfiguration, error)
	ListConfigurationsByUser(ctx context.Context, userID int64) ([]UserConfiguration, error)
	CountConfigurationsByServer(ctx context.Context, serverID int64) (int64, error)
	UpdateConfiguration(ctx context.Context, params UpdateConfigurationParams) error
	DeleteConfigurationByClientUUID(ctx context.Context, clientUUID string) error
}

var _ Querier = (*Queries)(nil)

const createUser = `
INSERT INTO users (username) VALUES (?)
RETURNING id, username, created_at
`

// CreateUser inserts a user record.
func (q *Queries) CreateUser(ctx context.Context, username string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, createUser, username).
		Scan(&u.ID, &u.Username, &u.CreatedAt)
	return u, err
}

const getUser = `
SELECT id, username, created_at FROM users WHERE id = ?
`

// GetUser fetches a user by id. Returns sql.ErrNoRows when absent.
func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUser, id).
		Scan(&u.ID, &u.Username, &u.CreatedAt)
	return u, err
}

const listUsers = `
SELECT id, username, created_at FROM users ORDER BY id
`

// ListUsers returns every user in stable id order.
func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateServerParams holds the fields for a new server record.
type CreateServerParams struct {
	Country     string
	Host        string
	SSHPort     int
	SSHUsername string
	SSHPassword string
	MaxUsers    int
	PanelPort   int
	PanelURL    string
}

const createServer = `
INSERT INTO servers (country, host, ssh_port, ssh_username, ssh_password, max_users, panel_port, panel_url)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, country, host, ssh_port, ssh_username, ssh_password, max_users, panel_port, panel_url, created_at
`

// CreateServer inserts a server record.
func (q *Queries) CreateServer(ctx context.Context, params CreateServerParams) (Server, error) {
	var s Server
	err := q.db.QueryRowContext(ctx, createServer,
		params.Country, params.Host, params.SSHPort, params.SSHUsername,
		params.SSHPassword, params.MaxUsers, params.PanelPort, params.PanelURL,
	).Scan(&s.ID, &s.Country, &s.Host, &s.SSHPort, &s.SSHUsername,
		&s.SSHPassword, &s.MaxUsers, &s.PanelPort, &s.PanelURL, &s.CreatedAt)
	return s, err
}

const getServer = `
SELECT id, country, host, ssh_port, ssh_username, ssh_password, max_users, panel_port, panel_url, created_at
FROM servers WHERE id = ?
`

// GetServer fetches a server by id.
func (q *Queries) GetServer(ctx context.Context, id int64) (Server, error) {
	return q.scanServerRow(q.db.QueryRowContext(ctx, getServer, id))
}

const getServerByAddress = `
SELECT id, country, host, ssh_port, ssh_username, ssh_password, max_users, panel_port, panel_url, created_at
FROM servers WHERE host = ? AND ssh_port = ?
`

// GetServerByAddress fetches a server by its (host, ssh_port) pair.
func (q *Queries) GetServerByAddress(ctx context.Context, host string, sshPort int) (Server, error) {
	return q.scanServerRow(q.db.QueryRowContext(ctx, getServerByAddress, host, sshPort))
}

const listServers = `
SELECT id, country, host, ssh_port, ssh_username, ssh_password, max_users, panel_port, panel_url, created_at
FROM servers ORDER BY id
`

// ListServers returns the whole fleet in stable id order.
func (q *Queries) ListServers(ctx context.Context) ([]Server, error) {
	return q.queryServers(ctx, listServers)
}

const listServersByCountry = `
SELECT id, country, host, ssh_port, ssh_username, ssh_password, max_users, panel_port, panel_url, created_at
FROM servers WHERE country = ? ORDER BY id
`

// ListServersByCountry returns servers tagged with the country, in stable id
// order. Selection tie-breaks depend on this ordering.
func (q *Queries) ListServersByCountry(ctx context.Context, country string) ([]Server, error) {
	return q.queryServers(ctx, listServersByCountry, country)
}

func (q *Queries) queryServers(ctx context.Context, query string, args ...any) ([]Server, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []Server
	for rows.Next() {
		var s Server
		if err := rows.Scan(&s.ID, &s.Country, &s.Host, &s.SSHPort, &s.SSHUsername,
			&s.SSHPassword, &s.MaxUsers, &s.PanelPort, &s.PanelURL, &s.CreatedAt); err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

func (q *Queries) scanServerRow(row *sql.Row) (Server, error) {
	var s Server
	err := row.Scan(&s.ID, &s.Country, &s.Host, &s.SSHPort, &s.SSHUsername,
		&s.SSHPassword, &s.MaxUsers, &s.PanelPort, &s.PanelURL, &s.CreatedAt)
	return s, err
}

// CreateConfigurationParams holds the fields for a new configuration record.
type CreateConfigurationParams struct {
	UserID         int64
	ServerID       int64
	ClientUUID     string
	ConfigLink     string
	Months         int
	ExpirationDate time.Time
}

const createConfiguration = `
INSERT INTO user_configurations (user_id, server_id, client_uuid, config_link, months, expiration_date)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, user_id, server_id, client_uuid, config_link, months, expiration_date, created_at
`

// CreateConfiguration inserts a configuration record.
func (q *Queries) CreateConfiguration(ctx context.Context, params CreateConfigurationParams) (UserConfiguration, error) {
	var c UserConfiguration
	err := q.db.QueryRowContext(ctx, createConfiguration,
		params.UserID, params.ServerID, params.ClientUUID, params.ConfigLink,
		params.Months, params.ExpirationDate,
	).Scan(&c.ID, &c.UserID, &c.ServerID, &c.ClientUUID, &c.ConfigLink,
		&c.Months, &c.ExpirationDate, &c.CreatedAt)
	return c, err
}

const getConfigurationByClientUUID = `
SELECT id, user_id, server_id, client_uuid, config_link, months, expiration_date, created_at
FROM user_configurations WHERE client_uuid = ?
`

// GetConfigurationByClientUUID fetches a configuration by its fleet-unique
// client identifier.
func (q *Queries) GetConfigurationByClientUUID(ctx context.Context, clientUUID string) (UserConfiguration, error) {
	var c UserConfiguration
	err := q.db.QueryRowContext(ctx, getConfigurationByClientUUID, clientUUID).
		Scan(&c.ID, &c.UserID, &c.ServerID, &c.ClientUUID, &c.ConfigLink,
			&c.Months, &c.ExpirationDate, &c.CreatedAt)
	return c, err
}

const listConfigurationsByUser = `
SELECT id, user_id, server_id, client_uuid, config_link, months, expiration_date, created_at
FROM user_configurations WHERE user_id = ? ORDER BY id
`

// ListConfigurationsByUser returns all configurations owned by a user.
func (q *Queries) ListConfigurationsByUser(ctx context.Context, userID int64) ([]UserConfiguration, error) {
	rows, err := q.db.QueryContext(ctx, listConfigurationsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []UserConfiguration
	for rows.Next() {
		var c UserConfiguration
		if err := rows.Scan(&c.ID, &c.UserID, &c.ServerID, &c.ClientUUID, &c.ConfigLink,
			&c.Months, &c.ExpirationDate, &c.CreatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

const countConfigurationsByServer = `
SELECT COUNT(*) FROM user_configurations WHERE server_id = ?
`

// CountConfigurationsByServer returns the authoritative configuration count
// for a server. This is the compute function behind the capacity cache.
func (q *Queries) CountConfigurationsByServer(ctx context.Context, serverID int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countConfigurationsByServer, serverID).Scan(&count)
	return count, err
}

// UpdateConfigurationParams holds the remote-authoritative mutable fields.
type UpdateConfigurationParams struct {
	ClientUUID     string
	ConfigLink     string
	Months         int
	ExpirationDate time.Time
}

const updateConfiguration = `
UPDATE user_configurations
SET config_link = ?, months = ?, expiration_date = ?
WHERE client_uuid = ?
`

// UpdateConfiguration overwrites the mutable fields of a configuration. The
// remote panel is the system of record for these fields.
func (q *Queries) UpdateConfiguration(ctx context.Context, params UpdateConfigurationParams) error {
	_, err := q.db.ExecContext(ctx, updateConfiguration,
		params.ConfigLink, params.Months, params.ExpirationDate, params.ClientUUID)
	return err
}

const deleteConfigurationByClientUUID = `
DELETE FROM user_configurations WHERE client_uuid = ?
`

// DeleteConfigurationByClientUUID removes a configuration record.
func (q *Queries) DeleteConfigurationByClientUUID(ctx context.Context, clientUUID string) error {
	_, err := q.db.ExecContext(ctx, deleteConfigurationByClientUUID, clientUUID)
	return err
}
