package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	pkgcli "example.com/icmpping/pkg/cli"
	pkgutils "example.com/icmpping/pkg/utils"
	"github.com/alecthomas/kong"
)

//go:embed version.txt
var versionText []byte

func main() {
	if err := pkgcli.LoadEnvFile(); err != nil {
		slog.Warn("failed to load env file", "error", err)
	}

	buildVersion, err := pkgutils.NewBuildVersion(versionText)
	if err != nil {
		slog.Warn("failed to parse build version", "error", err)
	}
	sharedCtx := &pkgutils.GlobalSharedContext{
		BuildVersion: buildVersion,
		StartedAt:    time.Now(),
	}

	var cli pkgcli.CLI
	parser, err := pkgcli.NewParser(&cli, kong.Bind(sharedCtx))
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.Errorf("%s", err)
		os.Exit(1)
	}

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
