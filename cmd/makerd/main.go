// Command makerd runs the coinswap Maker daemon: load config, open the
// wallet, bootstrap the fidelity bond, register with the directory, and
// serve peer and RPC connections until terminated.
//
// Grounded on lnd.go's lndMain/main split: main() does nothing but call
// makerdMain and translate its error into an exit code, so every deferred
// cleanup in makerdMain (log flush, signal-context cancel) runs before
// os.Exit. The wallet is closed by the Supervisor's own shutdown step.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/coinswapd/maker/chainrpc"
	"github.com/coinswapd/maker/config"
	"github.com/coinswapd/maker/maker"
	"github.com/coinswapd/maker/wallet"
)

func main() {
	if err := makerdMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func makerdMain() error {
	runtime.GOMAXPROCS(runtime.NumCPU())

	dataDir := defaultDataDir()
	cfg, err := config.Load(dataDir, os.Args[1:])
	if err != nil {
		return fmt.Errorf("makerd: failed to load config: %w", err)
	}

	logFile := filepath.Join(cfg.DataDir, "logs", "makerd.log")
	if err := maker.InitLogRotator(logFile, 10_000, 3); err != nil {
		return fmt.Errorf("makerd: failed to init log rotator: %w", err)
	}
	defer maker.FlushLogs()
	maker.SetLogLevel(cfg.DebugLevel)

	netParams, err := chainParams(cfg.Network)
	if err != nil {
		return err
	}

	node, err := chainrpc.New(chainrpc.Config{
		Host: cfg.RPCHost,
		User: cfg.RPCUser,
		Pass: cfg.RPCPass,
	})
	if err != nil {
		return fmt.Errorf("makerd: failed to connect to chain backend: %w", err)
	}

	wal, err := wallet.Load(cfg.DataDir, cfg.WalletName, node, netParams)
	if err != nil {
		return fmt.Errorf("makerd: failed to load wallet: %w", err)
	}

	supCfg := maker.SupervisorConfig{
		ListenAddr:             fmt.Sprintf(":%d", cfg.Port),
		RPCListenAddr:          fmt.Sprintf("127.0.0.1:%d", cfg.RPCPort),
		DirectoryServerAddress: cfg.DirectoryServerAddress,
		FidelityValueSat:       cfg.FidelityValueSat,
		FidelityTimelockBlocks: cfg.FidelityTimelockBlocks,
		AdvertisedAddress:      cfg.AdvertisedAddress,
		DataDir:                cfg.DataDir,
		ListenPort:             cfg.Port,
		ConnectionType:         string(cfg.ConnectionType),
		Behavior:               maker.BehaviorNormal,
	}
	if cfg.ConnectionType == config.Tor {
		supCfg.SocksAddress = fmt.Sprintf("127.0.0.1:%d", cfg.SocksPort)
		supCfg.OnionAddress = readOnionHostname(cfg.DataDir)
	}

	sup := maker.NewSupervisor(supCfg, wal, node, clock.NewDefaultClock())

	peerLn, err := net.Listen("tcp", supCfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("makerd: failed to listen for peers: %w", err)
	}
	rpcLn, err := net.Listen("tcp", supCfg.RPCListenAddr)
	if err != nil {
		return fmt.Errorf("makerd: failed to listen for rpc: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return sup.Run(ctx, peerLn, rpcLn)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".makerd"
	}
	return filepath.Join(home, ".makerd")
}

func chainParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("makerd: unknown network %q", network)
	}
}

// readOnionHostname reads the hidden-service hostname an external Tor
// launcher wrote to disk; the launcher itself runs out-of-process and is
// not this daemon's concern. A missing file (launcher not finished yet,
// or TOR misconfigured) yields an empty onion address rather than a fatal
// error.
func readOnionHostname(dataDir string) string {
	b, err := os.ReadFile(filepath.Join(dataDir, "tor", "hostname"))
	if err != nil {
		return ""
	}
	return string(b)
}
