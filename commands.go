package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pftpd/pftpd-core/internal/audit"
	"github.com/pftpd/pftpd-core/internal/config"
	"github.com/pftpd/pftpd-core/internal/database"
	"github.com/pftpd/pftpd-core/internal/fingerprint"
	"github.com/pftpd/pftpd-core/internal/hostkeys"
	"github.com/pftpd/pftpd-core/internal/logging"
	"github.com/pftpd/pftpd-core/internal/report"
	"github.com/pftpd/pftpd-core/internal/rotation"
	"github.com/pftpd/pftpd-core/internal/sandbox"
	"github.com/pftpd/pftpd-core/internal/vpath"
)

// keyStore is implemented by both host key stores.
type keyStore interface {
	hostkeys.KeyStore
	hostkeys.KeyWriter
	Exists(hostkeys.Algorithm) bool
}

func openDB() error {
	if database.DB != nil {
		return nil
	}
	if err := database.Init(config.Cfg.DatabasePath); err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	return nil
}

func openKeyStore() (keyStore, error) {
	switch config.Cfg.KeyStore {
	case "", "dir":
		return hostkeys.NewDirStore(config.Cfg.KeyDir), nil
	case "db":
		if err := openDB(); err != nil {
			return nil, err
		}
		return hostkeys.NewDBStore(), nil
	default:
		return nil, fmt.Errorf("unknown key store %q (want dir or db)", config.Cfg.KeyStore)
	}
}

func openAuditor() (*audit.Auditor, error) {
	if err := openDB(); err != nil {
		return nil, err
	}
	return audit.NewAuditor(database.DB, config.Cfg.AuditRetentionDays)
}

func parseAlgorithms(list string) ([]hostkeys.Algorithm, error) {
	if list == "" {
		return nil, nil
	}
	var algs []hostkeys.Algorithm
	for _, name := range strings.Split(list, ",") {
		alg, err := hostkeys.ParseAlgorithm(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		algs = append(algs, alg)
	}
	return algs, nil
}

func runFingerprints(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fingerprints", flag.ContinueOnError)
	format := fs.String("format", config.Cfg.OutputFormat, "Output format: text, json or yaml")
	algList := fs.String("alg", "", "Comma-separated algorithms (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	algs, err := parseAlgorithms(*algList)
	if err != nil {
		return err
	}
	store, err := openKeyStore()
	if err != nil {
		return err
	}

	snap := fingerprint.NewRegistry(algs...).Generate(store)
	return report.Render(out, snap, *format)
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	algName := fs.String("alg", hostkeys.DefaultAlgorithm.String(), "Algorithm of the key pair")
	force := fs.Bool("force", false, "Replace an existing key pair")
	if err := fs.Parse(args); err != nil {
		return err
	}

	alg, err := hostkeys.ParseAlgorithm(*algName)
	if err != nil {
		return err
	}
	store, err := openKeyStore()
	if err != nil {
		return err
	}

	if *force {
		pub, priv, err := hostkeys.GenerateKeyPair(alg)
		if err != nil {
			return err
		}
		if err := store.SaveKeyPair(alg, priv, pub); err != nil {
			return err
		}
	} else {
		created, err := hostkeys.EnsureKeyPair(store, alg)
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(out, "%s host key already exists, use -force to replace it\n", alg)
			return nil
		}
	}

	snap := fingerprint.NewRegistry(alg).Generate(store)
	res, ok := snap.Fingerprint(alg, fingerprint.SHA256)
	if !ok {
		return fmt.Errorf("read back %s key: %w", alg, snap.Absent[alg])
	}
	fmt.Fprintf(out, "Generated %s host key %s\n", alg, res.OpenSSH(fingerprint.SHA256))
	return nil
}

func runVerify(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: verify <algorithm> <fingerprint>")
	}

	alg, err := hostkeys.ParseAlgorithm(fs.Arg(0))
	if err != nil {
		return err
	}
	store, err := openKeyStore()
	if err != nil {
		return err
	}

	snap := fingerprint.NewRegistry(alg).Generate(store)
	if err := snap.Verify(alg, fs.Arg(1)); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s host key matches %s\n", alg, fs.Arg(1))
	return nil
}

func runImportKeys(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import-keys", flag.ContinueOnError)
	from := fs.String("from", config.Cfg.KeyDir, "Directory holding the key files")
	if err := fs.Parse(args); err != nil {
		return err
	}

	auditor, err := openAuditor()
	if err != nil {
		return err
	}

	copied, err := hostkeys.Import(hostkeys.NewDBStore(), hostkeys.NewDirStore(*from))
	names := make([]string, len(copied))
	for i, alg := range copied {
		names[i] = alg.String()
	}
	if len(copied) > 0 {
		audit.Record(auditor, audit.EventKeysImported, *from, strings.Join(names, ","))
	}
	if err != nil {
		return err
	}

	if len(copied) == 0 {
		fmt.Fprintf(out, "No host keys found in %s\n", *from)
		return nil
	}
	fmt.Fprintf(out, "Imported %s\n", strings.Join(names, ", "))
	return nil
}

func runReseal(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reseal", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := openDB(); err != nil {
		return err
	}
	n, err := hostkeys.NewDBStore().Reseal()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Resealed %d private keys with a new seal key\n", n)
	return nil
}

func runResolve(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	root := fs.String("root", config.Cfg.SandboxRoot, "Host directory of the virtual root")
	home := fs.String("home", config.Cfg.HomeDir, "Virtual home directory")
	cwd := fs.String("cwd", "", "Virtual working directory (default: home)")
	fromHome := fs.Bool("from-home", false, "Anchor relative paths at home instead of the working directory")
	stat := fs.Bool("stat", false, "Print the modification time of existing files")
	user := fs.String("user", os.Getenv("USER"), "User named in log messages")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no paths given")
	}

	auditor, err := openAuditor()
	if err != nil {
		return err
	}
	opts := []sandbox.Option{sandbox.WithRecorder(auditor)}
	if *user != "" {
		opts = append(opts, sandbox.WithUser(*user))
	}
	sess, err := sandbox.New(*root, *home, opts...)
	if err != nil {
		return err
	}
	if *cwd != "" {
		sess.Chdir(*cwd)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, p := range fs.Args() {
		var virtual string
		if *fromHome {
			virtual = sess.ResolveFromHome(p)
		} else {
			virtual = sess.Resolve(p)
		}
		host := sess.HostPath(virtual)
		line := virtual + "\t" + host
		if *stat {
			if fi, err := os.Stat(host); err == nil {
				line += "\t" + vpath.TouchDate(fi.ModTime())
			} else {
				line += "\t-"
			}
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

func runWatch(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	schedule := fs.String("schedule", config.Cfg.RotationSchedule, "Cron schedule of the checks")
	once := fs.Bool("once", false, "Run a single check and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	auditor, err := openAuditor()
	if err != nil {
		return err
	}
	store, err := openKeyStore()
	if err != nil {
		return err
	}
	w, err := rotation.NewWatcher(fingerprint.NewRegistry(), store, rotation.Config{
		Schedule:        *schedule,
		SnapshotsToKeep: config.Cfg.SnapshotsToKeep,
		Recorder:        auditor,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := w.Check(ctx)
	if err != nil {
		return err
	}
	printChanges(out, res)
	if *once {
		return report.Render(out, res.Snapshot, config.Cfg.OutputFormat)
	}

	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	log.Println("Shutting down...")
	w.Stop()
	return nil
}

func printChanges(out io.Writer, res *rotation.Result) {
	switch {
	case res.Baseline:
		fmt.Fprintf(out, "Baseline snapshot %s recorded\n", res.Snapshot.ID)
	case len(res.Changes) == 0:
		fmt.Fprintln(out, "No host key changes")
	}
	for _, c := range res.Changes {
		switch c.Event {
		case audit.EventKeyAdded:
			fmt.Fprintf(out, "%s key added: %s\n", c.Algorithm, c.New)
		case audit.EventKeyRemoved:
			fmt.Fprintf(out, "%s key removed: %s\n", c.Algorithm, c.Old)
		default:
			fmt.Fprintf(out, "%s key changed: %s -> %s\n", c.Algorithm, c.Old, c.New)
		}
	}
}

func runAudit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	eventType := fs.String("type", "", "Filter by event type")
	subject := fs.String("subject", "", "Filter by subject")
	since := fs.Duration("since", 0, "Only entries newer than this duration")
	limit := fs.Int("limit", 50, "Maximum number of entries")
	offset := fs.Int("offset", 0, "Number of entries to skip")
	format := fs.String("format", config.Cfg.OutputFormat, "Output format: text, json or yaml")
	purge := fs.Bool("purge", false, "Delete entries older than the retention period first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	auditor, err := openAuditor()
	if err != nil {
		return err
	}
	if *purge {
		if _, err := auditor.PurgeOlderThan(0); err != nil {
			return err
		}
	}

	opts := audit.QueryOptions{
		EventType: *eventType,
		Subject:   *subject,
		Limit:     *limit,
		Offset:    *offset,
	}
	if *since > 0 {
		t := time.Now().Add(-*since)
		opts.Since = &t
	}
	result, err := auditor.Query(opts)
	if err != nil {
		return fmt.Errorf("query audit log: %w", err)
	}

	switch *format {
	case report.FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case report.FormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	case report.FormatText, "":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tEVENT\tSUBJECT\tDETAILS")
		for _, e := range result.Entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.EventType, e.Subject, e.Details)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d of %d entries\n", len(result.Entries), result.Total)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", *format)
	}
}

func runLogs(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	n := fs.Int("n", 100, "Number of lines (0 for all)")
	component := fs.String("component", "", "Only lines of this component, e.g. rotation")
	truncate := fs.Bool("clear", false, "Truncate the log file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if config.Cfg.LogPath == "" {
		return errors.New("no log file configured (set PFTPD_LOG_PATH)")
	}
	if *truncate {
		return logging.Clear(config.Cfg.LogPath)
	}

	text, err := logging.ReadTail(config.Cfg.LogPath, logging.TailOptions{Lines: *n, Component: *component})
	if err != nil {
		return err
	}
	if text != "" {
		fmt.Fprintln(out, text)
	}
	return nil
}
