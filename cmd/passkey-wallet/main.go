package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/compose-network/passkey-wallet/internal/logger"
)

func main() {
	app := cli.NewApp()
	app.Name = "passkey-wallet"
	app.Usage = "Drive the passkey smart account wallet from the command line"
	app.Compiled = time.Now()

	// global flags
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a config.yaml, the embedded configuration is used when empty",
			EnvVars: []string{"CONFIG_PATH"},
		},
		&cli.StringFlag{
			Name:  "store",
			Usage: "Directory of the wallet database, overrides wallet.storage-path",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "request",
			Usage:     "Send one provider request",
			ArgsUsage: "<method> [json-params]",
			Action:    request,
		},
		{
			Name:   "accounts",
			Usage:  "Print the connected account",
			Action: accounts,
		},
		{
			Name:   "chain-id",
			Usage:  "Print the active chain id",
			Action: chainID,
		},
		{
			Name:   "disconnect",
			Usage:  "Forget the remembered session",
			Action: disconnect,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("%v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
