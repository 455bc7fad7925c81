// Command bbp parses binary files with a schema document and writes JSON back to binary.
//
//	bbp parse --schema packet.yaml capture.bin
//	bbp write --schema packet.yaml --out capture.bin values.json
//	bbp check --schema packet.yaml
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/twinfer/bbp-plugin/pkg/bbp"
	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/blockparser"
)

func main() {
	if err := run(context.Background(), os.Args, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "bbp:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	app := &cli.App{
		Name:      "bbp",
		Usage:     "parse and write binary blocks described by block scripts",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "schema", Aliases: []string{"s"}, Usage: "schema document `FILE`", Required: true},
			&cli.StringFlag{Name: "bit-order", Usage: "override the bit order: lsb or msb"},
			&cli.StringSliceFlag{Name: "flag", Usage: "parser flag, repeatable"},
			&cli.StringSliceFlag{Name: "var", Usage: "`NAME=INT` variable for externals expressions, repeatable"},
			&cli.BoolFlag{Name: "debug", Usage: "log parser activity to stderr"},
		},
		Commands: []*cli.Command{
			{
				Name:      "parse",
				Usage:     "parse a binary file and print JSON",
				ArgsUsage: "[FILE]",
				Action: func(c *cli.Context) error {
					data, err := readInput(c, stdin)
					if err != nil {
						return err
					}
					parser, opts, err := newParser(c, stderr)
					if err != nil {
						return err
					}
					out, err := parser.SerializeToJSON(c.Context, data, c.String("schema"), opts...)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(stdout, string(out))
					return err
				},
			},
			{
				Name:      "write",
				Usage:     "write JSON values as binary",
				ArgsUsage: "[FILE]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output `FILE`, stdout when empty"},
				},
				Action: func(c *cli.Context) error {
					data, err := readInput(c, stdin)
					if err != nil {
						return err
					}
					parser, opts, err := newParser(c, stderr)
					if err != nil {
						return err
					}
					out, err := parser.SerializeFromJSON(c.Context, data, c.String("schema"), opts...)
					if err != nil {
						return err
					}
					if path := c.String("out"); path != "" {
						return os.WriteFile(path, out, 0644)
					}
					_, err = stdout.Write(out)
					return err
				},
			},
			{
				Name:  "check",
				Usage: "compile the schema and list its instructions",
				Action: func(c *cli.Context) error {
					parser, opts, err := newParser(c, stderr)
					if err != nil {
						return err
					}
					compiled, err := parser.Load(c.String("schema"), opts...)
					if err != nil {
						return err
					}
					for i, in := range compiled.Schema.Instructions() {
						fmt.Fprintf(stdout, "%3d  %s\n", i, in.String())
					}
					return nil
				},
			},
		},
	}
	return app.RunContext(ctx, args)
}

func readInput(c *cli.Context, stdin io.Reader) ([]byte, error) {
	if path := c.Args().First(); path != "" && path != "-" {
		return os.ReadFile(path)
	}
	return io.ReadAll(stdin)
}

func newParser(c *cli.Context, stderr io.Writer) (*bbp.Parser, []bbp.Option, error) {
	level := slog.LevelWarn
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	parser := bbp.NewParser(bbp.WithLogger(logger), bbp.WithoutCaching(), bbp.WithDebugMode(c.Bool("debug")))

	var opts []bbp.Option
	if s := c.String("bit-order"); s != "" {
		order, err := bitio.ParseBitOrder(s)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, bbp.WithBitOrder(order))
	}
	for _, name := range c.StringSlice("flag") {
		f, ok := blockparser.ParseFlag(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown flag %q", name)
		}
		opts = append(opts, bbp.WithFlags(f))
	}
	if pairs := c.StringSlice("var"); len(pairs) > 0 {
		vars, err := parseVars(pairs)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, bbp.WithVariables(vars))
	}
	return parser, opts, nil
}

func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("variable %q is not NAME=INT", pair)
		}
		var n int
		if _, err := fmt.Sscan(value, &n); err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		vars[name] = n
	}
	return vars, nil
}
