package command

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/emberkv/internal/cli/connection"
	"github.com/yndnr/emberkv/internal/cli/output"
	"github.com/yndnr/emberkv/internal/cli/repl"
	"github.com/yndnr/emberkv/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:      "emberkv-cli",
		Usage:     "emberkv command-line client",
		UsageText: "emberkv-cli [options] [command [arguments...]]",
		Version:   buildinfo.String(),
		Flags:     globalFlags(),
		Action:    run,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Aliases: []string{"H"},
			Usage:   "Server hostname",
			EnvVars: []string{"EMBERKV_HOST"},
			Value:   "127.0.0.1",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Server port",
			EnvVars: []string{"EMBERKV_PORT"},
			Value:   6379,
		},
		&cli.IntFlag{
			Name:    "db",
			Aliases: []string{"n"},
			Usage:   "Database number",
			Value:   0,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: text, raw, json",
			Value:   string(output.FormatText),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Connect and reply timeout",
			Value: connection.DefaultOptions().ReadTimeout,
		},
	}
}

// GlobalFlags holds the parsed global flags.
type GlobalFlags struct {
	Host    string
	Port    int
	DB      int
	Output  output.Format
	Options connection.Options
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) (*GlobalFlags, error) {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return nil, err
	}
	if c.Int("db") < 0 {
		return nil, fmt.Errorf("invalid db %d", c.Int("db"))
	}
	opts := connection.DefaultOptions()
	if d := c.Duration("timeout"); d > 0 {
		opts.DialTimeout = d
		opts.ReadTimeout = d
	}
	return &GlobalFlags{
		Host:    c.String("host"),
		Port:    c.Int("port"),
		DB:      c.Int("db"),
		Output:  format,
		Options: opts,
	}, nil
}

// Addr returns the server address.
func (f *GlobalFlags) Addr() string {
	return net.JoinHostPort(f.Host, strconv.Itoa(f.Port))
}

func run(c *cli.Context) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	s := newSession(flags, c.App.Writer)
	defer s.close()

	if err := s.connect(c.Context); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.NArg() == 0 {
		return repl.New(s).Run()
	}

	args := c.Args().Slice()
	if strings.EqualFold(args[0], "quit") {
		s.Execute(args)
		return nil
	}

	r, err := s.do(args)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if r.Kind == connection.KindError {
		return cli.Exit("", 1)
	}
	return nil
}
