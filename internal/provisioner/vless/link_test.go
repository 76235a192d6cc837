package vless

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildLinkGolden(t *testing.T) {
	codec := Codec{PublicKey: "pbk123", ServerName: "cdn.example.com"}

	link := codec.BuildLink("client-uuid", "203.0.113.10", 8443, "xtls-rprx-vision", "f00dfeed", "Unknown_Soldier_7_deadbeef")

	want := "vless://client-uuid@203.0.113.10:8443?type=tcp&security=reality&pbk=pbk123&fp=chrome&sni=cdn.example.com&sid=f00dfeed&spx=%2F&flow=xtls-rprx-vision#Unknown_Soldier_7_deadbeef"
	assert.Equal(t, want, link)
}

func TestBuildLinkDeterministic(t *testing.T) {
	codec := Codec{PublicKey: "pbk", ServerName: "sni.example.com"}

	first := codec.BuildLink("id", "host", 443, "flow", "sid", "label")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, codec.BuildLink("id", "host", 443, "flow", "sid", "label"))
	}
}

func TestBuildLinkEscapesLabel(t *testing.T) {
	codec := Codec{PublicKey: "pbk", ServerName: "sni"}

	link := codec.BuildLink("id", "host", 443, "", "sid", "label with space")
	assert.Contains(t, link, "#label%20with%20space")
}

func TestBuildLinkEmptyFlow(t *testing.T) {
	codec := Codec{PublicKey: "pbk", ServerName: "sni"}

	link := codec.BuildLink("id", "host", 443, "", "sid", "label")
	assert.Contains(t, link, "&flow=#")
}
