// Package vless renders client-facing vless:// reality connection links.
// Links are rebuilt and compared structurally during reconciliation, so the
// output must be byte-identical for identical inputs: fixed parameter order,
// no map iteration anywhere.
package vless

import (
	"fmt"
	"net/url"
)

// Codec builds connection links for one deployment. PublicKey is the reality
// public key and ServerName the SNI the fleet fronts as.
type Codec struct {
	PublicKey  string
	ServerName string
}

// BuildLink is a pure function of its inputs: the same arguments always yield
// the same URI.
func (c Codec) BuildLink(clientID, host string, port int, flow, shortID, label string) string {
	params := fmt.Sprintf(
		"type=tcp&security=reality&pbk=%s&fp=chrome&sni=%s&sid=%s&spx=%s&flow=%s",
		c.PublicKey, c.ServerName, shortID, url.QueryEscape("/"), flow)

	return fmt.Sprintf("vless://%s@%s:%d?%s#%s", clientID, host, port, params, url.PathEscape(label))
}
