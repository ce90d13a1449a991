// Package config loads the Maker's TOML configuration file, applying
// defaults for anything missing and writing the file back out if it did
// not already exist, grounded on lnd.go's loadConfig() load-then-validate
// shape; the TOML format below is this daemon's own.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	flags "github.com/jessevdk/go-flags"

	"github.com/coinswapd/maker/maker"
)

// ConnectionType selects how this Maker listens for and dials peers.
type ConnectionType string

const (
	Clearnet ConnectionType = "CLEARNET"
	Tor      ConnectionType = "TOR"
)

// Config mirrors the daemon's configuration surface: a TOML file at
// <data_dir>/config.toml plus command-line overrides for the fields an
// operator typically wants to flip per invocation.
type Config struct {
	DataDir string `toml:"-" long:"datadir" description:"Directory to store wallet, config, and logs in"`

	Port     int `toml:"port" long:"port" description:"Port to listen for peer connections on"`
	RPCPort  int `toml:"rpc_port" long:"rpcport" description:"Port to listen for local RPC control-plane connections on"`
	SocksPort int `toml:"socks_port" long:"socksport" description:"Port of the local Tor SOCKS5 proxy"`

	ConnectionType ConnectionType `toml:"connection_type" long:"connectiontype" choice:"CLEARNET" choice:"TOR" description:"CLEARNET or TOR"`

	DirectoryServerAddress string `toml:"directory_server_address" long:"directoryserver" description:"host:port of the directory server to advertise through"`

	FidelityValueSat    int64  `toml:"fidelity_value" long:"fidelityvalue" description:"Fidelity bond value, in satoshis"`
	FidelityTimelockBlocks uint32 `toml:"fidelity_timelock" long:"fidelitytimelock" description:"Fidelity bond relative timelock, in blocks"`

	AdvertisedAddress string `toml:"advertised_address" long:"advertisedaddress" description:"host:port this Maker advertises to the directory"`

	WalletName string `toml:"wallet_name" long:"walletname" description:"Name of the wallet file under <datadir>/wallets"`

	RPCHost string `toml:"rpc_host" long:"rpchost" description:"Bitcoin node RPC host:port"`
	RPCUser string `toml:"rpc_user" long:"rpcuser" description:"Bitcoin node RPC username"`
	RPCPass string `toml:"rpc_pass" long:"rpcpass" description:"Bitcoin node RPC password"`

	Network string `toml:"network" long:"network" choice:"mainnet" choice:"testnet" choice:"regtest" description:"Bitcoin network"`

	// IdleTimeoutAdvisory is a peripheral config-file idle-timeout value,
	// non-authoritative. It's read from the config file and otherwise
	// ignored — maker.IdleTimeout is the behavior-determining constant.
	IdleTimeoutAdvisory int `toml:"idle_connection_timeout" long:"idleconnectiontimeout" description:"Advisory idle-connection timeout, in seconds; not the effective value, see docs"`

	DebugLevel string `toml:"debug_level" long:"debuglevel" description:"Logging level: trace, debug, info, warn, error, critical"`
}

// Default returns a Config populated with this daemon's stated defaults.
func Default() *Config {
	return &Config{
		Port:                   8474,
		RPCPort:                8475,
		SocksPort:              9050,
		ConnectionType:         Clearnet,
		FidelityValueSat:       50_000,
		FidelityTimelockBlocks: 26_000, // roughly six months of blocks
		WalletName:             "maker-wallet",
		Network:                "mainnet",
		IdleTimeoutAdvisory:    int(maker.IdleTimeoutAdvisory.Seconds()),
		DebugLevel:             "info",
	}
}

// Load reads <data_dir>/config.toml, creating it from defaults if absent,
// then applies any command-line flags in args on top, so a flag overrides
// the same setting from the TOML file.
func Load(dataDir string, args []string) (*Config, error) {
	cfg := Default()
	cfg.DataDir = dataDir

	path := filepath.Join(dataDir, "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("config: failed to create data dir: %w", err)
		}
		if err := save(path, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to write default config: %w", err)
		}
	} else {
		// Unknown keys in the file are ignored by toml.DecodeFile.
		fileCfg := Default()
		if _, err := toml.DecodeFile(path, fileCfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
		fileCfg.DataDir = dataDir
		cfg = fileCfg
	}

	if len(args) > 0 {
		parser := flags.NewParser(cfg, flags.IgnoreUnknown)
		if _, err := parser.ParseArgs(args); err != nil {
			return nil, fmt.Errorf("config: failed to parse flags: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the handful of fields the core actually depends on
// being sane; everything else is the narrow wallet/RPC edge's problem.
func (c *Config) Validate() error {
	if c.ConnectionType != Clearnet && c.ConnectionType != Tor {
		return fmt.Errorf("config: connection_type must be CLEARNET or TOR, got %q", c.ConnectionType)
	}
	if c.DirectoryServerAddress == "" {
		return fmt.Errorf("config: directory_server_address must be set")
	}
	if c.FidelityValueSat <= 0 {
		return fmt.Errorf("config: fidelity_value must be positive")
	}
	return nil
}

func save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
