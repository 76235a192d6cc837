package panel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/provisioner/ssh"
	apperrors "github.com/AvinFlower/shadow-link/internal/shared/errors"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

// panelDBPath is where the x-ui panel keeps its SQLite database on every node.
const panelDBPath = "/etc/x-ui/x-ui.db"

// ErrInboundNotFound reports that no inbound exists at the requested port.
var ErrInboundNotFound = errors.New("panel: inbound not found")

// Client executes the fixed set of remote operations against one VPS panel.
// Every call opens a fresh SSH session and is bounded by the client's timeout.
type Client interface {
	// ReadInbound fetches the inbound row listening on port.
	ReadInbound(ctx context.Context, port int) (*Inbound, error)

	// AppendClient writes the inbound settings back with entry appended.
	AppendClient(ctx context.Context, inbound *Inbound, entry ClientEntry) error

	// InsertTrafficRecord records usage/expiry accounting for email. Best
	// effort: failures are surfaced but do not undo AppendClient.
	InsertTrafficRecord(ctx context.Context, email string, expiry time.Time) error

	// RestartPanel restarts the panel service so it reloads its config.
	RestartPanel(ctx context.Context) error

	// ListClients returns every client entry on the inbound at port. An
	// unreachable node is an error, never an empty list.
	ListClients(ctx context.Context, port int) ([]ClientEntry, error)
}

// Factory builds a Client for one server from its stored credentials.
type Factory func(server db.Server) (Client, error)

// NewSSHFactory returns a Factory that connects over SSH with the server's
// password credentials.
func NewSSHFactory(dialTimeout, callTimeout time.Duration, log *logger.Logger) Factory {
	return func(server db.Server) (Client, error) {
		runner, err := ssh.NewRunner(ssh.Config{
			Host:        server.Host,
			Port:        server.SSHPort,
			User:        server.SSHUsername,
			Password:    server.SSHPassword,
			DialTimeout: dialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build runner for %s: %w", server.Host, err)
		}
		return NewClient(runner, callTimeout, log.With("server_host", server.Host)), nil
	}
}

type client struct {
	runner      ssh.Runner
	callTimeout time.Duration
	logger      *logger.Logger
}

// NewClient creates a panel client on top of an SSH runner. callTimeout bounds
// every remote call; zero means 30 seconds.
func NewClient(runner ssh.Runner, callTimeout time.Duration, log *logger.Logger) Client {
	if callTimeout == 0 {
		callTimeout = 30 * time.Second
	}
	return &client{
		runner:      runner,
		callTimeout: callTimeout,
		logger:      log,
	}
}

func (c *client) run(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.runner.Run(ctx, command)
}

func (c *client) ReadInbound(ctx context.Context, port int) (*Inbound, error) {
	query := fmt.Sprintf(
		`SELECT id, json(settings), json_extract(stream_settings, '$.realitySettings.shortIds[0]') FROM inbounds WHERE port = %d;`,
		port)

	out, err := c.run(ctx, sqliteCommand(query))
	if err != nil {
		return nil, classify(err, "read inbound")
	}
	if out == "" {
		return nil, apperrors.NewPanelError(apperrors.ErrCodeNotFound,
			fmt.Sprintf("no inbound on port %d", port), false, ErrInboundNotFound)
	}

	parts := strings.SplitN(out, "|", 3)
	if len(parts) != 3 {
		return nil, apperrors.NewPanelError(apperrors.ErrCodeInternal,
			"malformed inbound row", false, fmt.Errorf("unexpected output %q", out))
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, apperrors.NewPanelError(apperrors.ErrCodeInternal,
			"malformed inbound id", false, err)
	}

	shortID := strings.TrimSpace(parts[2])
	if shortID == "" {
		return nil, apperrors.NewPanelError(apperrors.ErrCodeInternal,
			"inbound has no reality shortId", false, nil)
	}

	var settings map[string]any
	if err := json.Unmarshal([]byte(parts[1]), &settings); err != nil {
		return nil, apperrors.NewPanelError(apperrors.ErrCodeInternal,
			"malformed inbound settings", false, err)
	}

	return &Inbound{ID: id, ShortID: shortID, Settings: settings}, nil
}

func (c *client) AppendClient(ctx context.Context, inbound *Inbound, entry ClientEntry) error {
	// Round-trip the entry through JSON so it lands in the settings map the
	// same way a decoded entry would.
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return apperrors.NewPanelError(apperrors.ErrCodeInternal, "failed to encode client entry", false, err)
	}
	var entryMap map[string]any
	if err := json.Unmarshal(entryJSON, &entryMap); err != nil {
		return apperrors.NewPanelError(apperrors.ErrCodeInternal, "failed to decode client entry", false, err)
	}

	clients, _ := inbound.Settings["clients"].([]any)
	inbound.Settings["clients"] = append(clients, entryMap)

	settingsJSON, err := json.MarshalIndent(inbound.Settings, "", "    ")
	if err != nil {
		return apperrors.NewPanelError(apperrors.ErrCodeInternal, "failed to encode settings", false, err)
	}

	// The settings blob goes through base64 so shell quoting cannot mangle it.
	encoded := base64.StdEncoding.EncodeToString(settingsJSON)
	command := fmt.Sprintf(
		`echo "%s" | base64 -d | xargs -0 -I {} sqlite3 %s "UPDATE inbounds SET settings = '{}' WHERE id = %d;"`,
		encoded, panelDBPath, inbound.ID)

	if _, err := c.run(ctx, command); err != nil {
		if errors.Is(err, ssh.ErrUnreachable) {
			return classify(err, "append client")
		}
		return apperrors.NewPanelError(apperrors.ErrCodeRemoteWrite,
			"failed to write inbound settings", false, err)
	}
	return nil
}

func (c *client) InsertTrafficRecord(ctx context.Context, email string, expiry time.Time) error {
	query := fmt.Sprintf(
		`INSERT INTO client_traffics (inbound_id, enable, email, up, down, expiry_time, total, reset) VALUES ((SELECT id FROM inbounds), 1, '%s', 0, 0, %d, 0, 0);`,
		email, ExpiryMillis(expiry))

	if _, err := c.run(ctx, sqliteCommand(query)); err != nil {
		return classify(err, "insert traffic record")
	}
	return nil
}

func (c *client) RestartPanel(ctx context.Context) error {
	if _, err := c.run(ctx, "systemctl restart x-ui"); err != nil {
		return classify(err, "restart panel")
	}
	return nil
}

func (c *client) ListClients(ctx context.Context, port int) ([]ClientEntry, error) {
	query := fmt.Sprintf(
		`SELECT json_extract(settings, '$.clients') FROM inbounds WHERE port = %d;`,
		port)

	out, err := c.run(ctx, sqliteCommand(query))
	if err != nil {
		return nil, classify(err, "list clients")
	}
	if out == "" {
		return nil, apperrors.NewPanelError(apperrors.ErrCodeNotFound,
			fmt.Sprintf("no inbound on port %d", port), false, ErrInboundNotFound)
	}
	if out == "null" {
		return nil, nil
	}

	var raw []any
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, apperrors.NewPanelError(apperrors.ErrCodeInternal,
			"malformed clients array", false, err)
	}
	return decodeClients(raw)
}

func decodeClients(raw any) ([]ClientEntry, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, apperrors.NewPanelError(apperrors.ErrCodeInternal,
			"failed to re-encode clients array", false, err)
	}
	var clients []ClientEntry
	if err := json.Unmarshal(encoded, &clients); err != nil {
		return nil, apperrors.NewPanelError(apperrors.ErrCodeInternal,
			"failed to decode clients array", false, err)
	}
	return clients, nil
}

func sqliteCommand(query string) string {
	return fmt.Sprintf(`sqlite3 %s "%s"`, panelDBPath, query)
}

// classify maps transport failures to the remote_unreachable code so callers
// never mistake an unreachable node for an empty one.
func classify(err error, operation string) error {
	if errors.Is(err, ssh.ErrUnreachable) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewPanelError(apperrors.ErrCodeRemoteUnreachable,
			operation+" failed: node unreachable", true, err)
	}
	return apperrors.NewPanelError(apperrors.ErrCodeInternal,
		operation+" failed", false, err)
}
