package panel

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvinFlower/shadow-link/internal/provisioner/ssh"
	apperrors "github.com/AvinFlower/shadow-link/internal/shared/errors"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

// fakeRunner scripts SSH command outputs so panel behavior can be tested
// without a live session.
type fakeRunner struct {
	commands []string
	outputs  []string
	errs     []error
}

func (f *fakeRunner) Run(_ context.Context, command string) (string, error) {
	f.commands = append(f.commands, command)
	i := len(f.commands) - 1
	var out string
	var err error
	if i < len(f.outputs) {
		out = f.outputs[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return out, err
}

func newTestClient(runner ssh.Runner) Client {
	return NewClient(runner, time.Second, logger.NewDevelopment("panel-test"))
}

func TestReadInbound(t *testing.T) {
	runner := &fakeRunner{outputs: []string{
		`3|{"clients": [{"id": "abc", "email": "a@b", "enable": true, "expiryTime": 1700000000000, "flow": "xtls-rprx-vision"}], "decryption": "none"}|f00dfeed`,
	}}
	c := newTestClient(runner)

	inbound, err := c.ReadInbound(context.Background(), 443)
	require.NoError(t, err)

	assert.Equal(t, int64(3), inbound.ID)
	assert.Equal(t, "f00dfeed", inbound.ShortID)

	clients, err := inbound.Clients()
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "abc", clients[0].ID)
	assert.True(t, clients[0].Enable)

	require.Len(t, runner.commands, 1)
	assert.Contains(t, runner.commands[0], "WHERE port = 443")
	assert.Contains(t, runner.commands[0], "realitySettings.shortIds[0]")
}

func TestReadInboundNotFound(t *testing.T) {
	c := newTestClient(&fakeRunner{outputs: []string{""}})

	_, err := c.ReadInbound(context.Background(), 8443)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInboundNotFound)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetErrorCode(err))
}

func TestReadInboundUnreachable(t *testing.T) {
	c := newTestClient(&fakeRunner{errs: []error{ssh.ErrUnreachable}})

	_, err := c.ReadInbound(context.Background(), 443)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRemoteUnreachable, apperrors.GetErrorCode(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestAppendClientBuildsBase64Update(t *testing.T) {
	runner := &fakeRunner{outputs: []string{""}}
	c := newTestClient(runner)

	inbound := &Inbound{
		ID:      7,
		ShortID: "f00d",
		Settings: map[string]any{
			"clients":    []any{map[string]any{"id": "existing"}},
			"decryption": "none",
		},
	}
	entry := ClientEntry{
		ID:         "new-client",
		Email:      "Unknown_Soldier_1_deadbeef",
		Enable:     true,
		ExpiryTime: 1700000000000,
		Flow:       "xtls-rprx-vision",
	}

	require.NoError(t, c.AppendClient(context.Background(), inbound, entry))

	require.Len(t, runner.commands, 1)
	cmd := runner.commands[0]
	assert.Contains(t, cmd, "base64 -d")
	assert.Contains(t, cmd, "UPDATE inbounds SET settings")
	assert.Contains(t, cmd, "WHERE id = 7")

	// The payload must survive the base64 round trip with both entries.
	start := strings.Index(cmd, `"`) + 1
	end := strings.Index(cmd[start:], `"`) + start
	decoded, err := base64.StdEncoding.DecodeString(cmd[start:end])
	require.NoError(t, err)
	assert.Contains(t, string(decoded), `"existing"`)
	assert.Contains(t, string(decoded), `"new-client"`)
	assert.Contains(t, string(decoded), `"decryption"`)
}

func TestAppendClientWriteFailure(t *testing.T) {
	runner := &fakeRunner{errs: []error{assert.AnError}}
	c := newTestClient(runner)

	inbound := &Inbound{ID: 1, ShortID: "f00d", Settings: map[string]any{"clients": []any{}}}
	err := c.AppendClient(context.Background(), inbound, ClientEntry{ID: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRemoteWrite, apperrors.GetErrorCode(err))
}

func TestInsertTrafficRecord(t *testing.T) {
	runner := &fakeRunner{outputs: []string{""}}
	c := newTestClient(runner)

	expiry := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.InsertTrafficRecord(context.Background(), "Unknown_Soldier_1_cafe", expiry))

	require.Len(t, runner.commands, 1)
	assert.Contains(t, runner.commands[0], "INSERT INTO client_traffics")
	assert.Contains(t, runner.commands[0], "Unknown_Soldier_1_cafe")
	assert.Contains(t, runner.commands[0], "1790726400000")
}

func TestListClients(t *testing.T) {
	runner := &fakeRunner{outputs: []string{
		`[{"id": "a", "email": "e1", "enable": true, "expiryTime": 1700000000000, "flow": "", "user_id": 5, "months": 3, "link": "vless://a@h:443"}]`,
	}}
	c := newTestClient(runner)

	clients, err := c.ListClients(context.Background(), 443)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "a", clients[0].ID)
	assert.Equal(t, int64(5), clients[0].UserID)
	assert.Equal(t, 3, clients[0].Months)
	assert.Equal(t, "vless://a@h:443", clients[0].Link)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), clients[0].ExpiresAt())
}

func TestListClientsNullArray(t *testing.T) {
	c := newTestClient(&fakeRunner{outputs: []string{"null"}})

	clients, err := c.ListClients(context.Background(), 443)
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestListClientsUnreachableIsNotEmpty(t *testing.T) {
	c := newTestClient(&fakeRunner{errs: []error{ssh.ErrUnreachable}})

	clients, err := c.ListClients(context.Background(), 443)
	require.Error(t, err)
	assert.Nil(t, clients)
	assert.Equal(t, apperrors.ErrCodeRemoteUnreachable, apperrors.GetErrorCode(err))
}

func TestRestartPanel(t *testing.T) {
	runner := &fakeRunner{outputs: []string{""}}
	c := newTestClient(runner)

	require.NoError(t, c.RestartPanel(context.Background()))
	require.Len(t, runner.commands, 1)
	assert.Equal(t, "systemctl restart x-ui", runner.commands[0])
}
