package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Run using
//  go run ./cmd/cmt <command> <flags>

var (
	dirFlag = cli.StringFlag{
		Name:  "dir",
		Usage: "workspace directory holding the head, event log and snapshots",
		Value: ".",
	}
	backendFlag = cli.StringFlag{
		Name:  "backend",
		Usage: "snapshot storage: file or leveldb",
		Value: "file",
	}
	compressFlag = cli.BoolFlag{
		Name:  "compress",
		Usage: "snappy-compress snapshots",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "log debug output to stderr",
	}
)

var commands = []*cli.Command{
	&Supported,
	&Size,
	&Create,
	&Append,
	&Replace,
	&Prove,
	&Verify,
	&Show,
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cmt",
		Usage: "concurrent Merkle tree workspace tool",
		Flags: []cli.Flag{
			&dirFlag,
			&backendFlag,
			&compressFlag,
			&verboseFlag,
		},
		Commands: commands,
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
