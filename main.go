package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pftpd/pftpd-core/internal/config"
	"github.com/pftpd/pftpd-core/internal/database"
	"github.com/pftpd/pftpd-core/internal/logging"
)

const usage = `Usage: pftpd-core <command> [flags]

Commands:
  fingerprints   print host key fingerprints
  verify         check a host key against an expected fingerprint
  keygen         generate a host key pair
  import-keys    copy host keys from a directory into the database
  reseal         re-encrypt stored private keys with a new seal key
  resolve        resolve client paths inside the sandbox
  watch          regenerate fingerprints on a schedule and report changes
  audit          query the audit log
  logs           print the tail of the log file

Run 'pftpd-core <command> -h' for the flags of a command.
`

type command func(args []string, out io.Writer) error

var commands = map[string]command{
	"fingerprints": runFingerprints,
	"verify":       runVerify,
	"keygen":       runKeygen,
	"import-keys":  runImportKeys,
	"reseal":       runReseal,
	"resolve":      runResolve,
	"watch":        runWatch,
	"audit":        runAudit,
	"logs":         runLogs,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	name := os.Args[1]
	switch name {
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	config.Load()
	logging.Init(config.Cfg.LogPath)

	err := cmd(os.Args[2:], os.Stdout)

	if database.DB != nil {
		database.Close()
	}
	logging.Close()

	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}
