// Command maker-cli is the thin RPC client talking to makerd's local
// control plane, grounded on cmd/lncli/main.go's urfave/cli app shape.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "maker-cli"
	app.Usage = "control a running makerd instance"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Value: "127.0.0.1:8475",
			Usage: "host:port of the daemon's RPC listener",
		},
	}
	app.Commands = commands()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
