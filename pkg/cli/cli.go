package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

const envFileVariable = "ICMPPING_ENV_FILE"

type CLI struct {
	Ping    PingCmd    `cmd:"" default:"withargs" help:"Send ICMP echo requests to a host (default command)"`
	Version VersionCmd `cmd:"" help:"Print build information"`
}

func NewParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("icmpping"),
		kong.Description("Send ICMP echo requests over a raw socket and report round trip statistics."),
		kong.UsageOnError(),
	}, options...)
	return kong.New(cli, options...)
}

// LoadEnvFile loads variables from the file named by ICMPPING_ENV_FILE, or
// ./.env, without overriding the ones already set. A missing file is fine.
func LoadEnvFile() error {
	path := os.Getenv(envFileVariable)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
