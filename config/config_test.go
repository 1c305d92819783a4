package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	c := Defaults()
	c.RouterID = "router-a"
	c.Redis.URL = "redis://localhost:6379/0"
	c.Security.EncryptionKey = "01234567890123456789012345678901"
	c.Ledgers = map[string]LedgerConfig{
		"mock-1": {Type: "mock"},
	}
	c.Network.Peers = []string{"finp2p://router-b@peer-b.example.com:9000"}
	return c
}

func TestValidConfigPasses(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestEmptyRouterIDFails(t *testing.T) {
	c := validConfig()
	c.RouterID = ""
	require.Error(t, c.Validate())
}

func TestShortEncryptionKeyFails(t *testing.T) {
	c := validConfig()
	c.Security.EncryptionKey = "short"
	require.Error(t, c.Validate())
}

func TestPortOutOfRangeFails(t *testing.T) {
	c := validConfig()
	c.Port = 70000
	require.Error(t, c.Validate())
}

func TestUnsupportedLedgerTypeFails(t *testing.T) {
	c := validConfig()
	c.Ledgers = map[string]LedgerConfig{"x": {Type: "not-a-ledger"}}
	require.Error(t, c.Validate())
}

func TestPeerURLWithoutRouterIDFails(t *testing.T) {
	c := validConfig()
	c.Network.Peers = []string{"https://peer-b.example.com:9000"}
	require.Error(t, c.Validate())
}

func TestMissingRedisURLFails(t *testing.T) {
	c := validConfig()
	c.Redis.URL = ""
	require.Error(t, c.Validate())
}

func TestListenPortOutOfRangeFails(t *testing.T) {
	c := validConfig()
	c.Network.ListenPort = 70000
	require.Error(t, c.Validate())
}
