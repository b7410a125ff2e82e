package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wpphub/internal/daemon"
	"github.com/matheus3301/wpphub/internal/datadir"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "config file path (overrides $"+datadir.ConfigEnv+")")
	listenFlag := flag.String("listen", "", "HTTP listen address (overrides $PORT and config)")
	flag.Parse()

	cfg, _, err := datadir.ResolveConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			Config:     cfg,
			ListenAddr: datadir.ListenAddr(cfg, *listenFlag),
		}),
	)

	app.Run()
}
