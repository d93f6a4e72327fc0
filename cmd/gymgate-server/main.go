package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	_ "time/tzdata"
)

var (
	version = "dev"
	cli     struct {
		Version kong.VersionFlag `help:"Print the version and exit."`
		Serve   ServeCmd         `cmd:"" default:"withargs" help:"Run the gate (HTTP API + gRPC health)."`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("gymgate-server"),
		kong.Description("American Sport gym attendance gate."),
		kong.Vars{"version": version},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run()
	cmd.FatalIfErrorf(err)
}
