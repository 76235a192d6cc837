// Package fleet imports the server inventory from numbered environment
// variables: HOST1/PORT1/COUNTRY1/... describe the first server, HOST2 the
// second, and the scan stops at the first missing HOSTn. Already-known
// servers are left untouched, so the import is safe to run on every start.
package fleet

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/shared/errors"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

type Importer struct {
	store  db.Store
	log    *logger.Logger
	getenv func(string) string
}

// Summary reports one import run.
type Summary struct {
	Imported int
	Skipped  int
	Invalid  int
}

func NewImporter(store db.Store, log *logger.Logger) *Importer {
	return &Importer{
		store:  store,
		log:    log.WithComponent("fleet"),
		getenv: os.Getenv,
	}
}

// ImportFromEnv scans the numbered variables and records every new server.
func (i *Importer) ImportFromEnv(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	for n := 1; ; n++ {
		host := strings.TrimSpace(i.getenv(fmt.Sprintf("HOST%d", n)))
		if host == "" {
			break
		}

		params, err := i.readServer(n, host)
		if err != nil {
			summary.Invalid++
			i.log.WarnContext(ctx, "server entry skipped", "index", n, "host", host, "error", err)
			continue
		}

		if _, err := i.store.GetServerByAddress(ctx, params.Host, params.SSHPort); err == nil {
			summary.Skipped++
			continue
		} else if err != sql.ErrNoRows {
			return nil, errors.NewDatabaseError(errors.ErrCodeDatabase, "checking for existing server", true, err)
		}

		server, err := i.store.CreateServer(ctx, *params)
		if err != nil {
			return nil, errors.NewDatabaseError(errors.ErrCodeDatabase,
				fmt.Sprintf("importing server %s:%d", params.Host, params.SSHPort), true, err)
		}

		summary.Imported++
		i.log.InfoContext(ctx, "server imported",
			"server_id", server.ID,
			"host", server.Host,
			"country", server.Country,
			"max_users", server.MaxUsers)
	}

	i.log.InfoContext(ctx, "fleet import finished",
		"imported", summary.Imported,
		"skipped", summary.Skipped,
		"invalid", summary.Invalid)
	return summary, nil
}

func (i *Importer) readServer(n int, host string) (*db.CreateServerParams, error) {
	sshPort, err := i.readPort(fmt.Sprintf("PORT%d", n))
	if err != nil {
		return nil, err
	}
	panelPort, err := i.readPort(fmt.Sprintf("PORT_X_UI%d", n))
	if err != nil {
		return nil, err
	}

	country := strings.TrimSpace(i.getenv(fmt.Sprintf("COUNTRY%d", n)))
	if country == "" {
		return nil, fmt.Errorf("COUNTRY%d is empty", n)
	}
	username := strings.TrimSpace(i.getenv(fmt.Sprintf("USERNAME%d", n)))
	if username == "" {
		return nil, fmt.Errorf("USERNAME%d is empty", n)
	}
	password := i.getenv(fmt.Sprintf("PASSWORD%d", n))
	if password == "" {
		return nil, fmt.Errorf("PASSWORD%d is empty", n)
	}

	maxUsers, err := strconv.Atoi(strings.TrimSpace(i.getenv(fmt.Sprintf("MAX_USERS%d", n))))
	if err != nil || maxUsers < 0 {
		return nil, fmt.Errorf("MAX_USERS%d is not a non-negative integer", n)
	}

	return &db.CreateServerParams{
		Country:     country,
		Host:        host,
		SSHPort:     sshPort,
		SSHUsername: username,
		SSHPassword: password,
		MaxUsers:    maxUsers,
		PanelPort:   panelPort,
		PanelURL:    strings.TrimSpace(i.getenv(fmt.Sprintf("UI_PANEL_LINK%d", n))),
	}, nil
}

func (i *Importer) readPort(key string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(i.getenv(key)))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s is not a valid port", key)
	}
	return port, nil
}
