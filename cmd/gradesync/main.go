// Command gradesync is the CLI sync client. It reconciles the local snapshot
// against the hosted document store with per-field encryption, or goes through
// the mobile bridge when built without direct store access.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mbruegge/gradesync/internal/bridge"
	"github.com/mbruegge/gradesync/internal/errs"
	"github.com/mbruegge/gradesync/internal/local"
	"github.com/mbruegge/gradesync/internal/model"
	"github.com/mbruegge/gradesync/internal/remote/docstore"
	gsync "github.com/mbruegge/gradesync/internal/sync"
)

// ---- config ----

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "gradesync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gradesync")
}

func dbPath() string { return filepath.Join(cfgDir(), "snapshot.db") }

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `gradesync CLI
Usage:
  gradesync -user <id> [-store-url URL] [-bridge-url URL] <cmd> [args]

Commands:
  version
  import       -file <json>               (load subjects into the local snapshot)
  status                                  (show local snapshot summary)
  push                                    (encrypt and upload the local snapshot)
  pull                                    (download, decrypt and store remotely held subjects)
  bridge-pull  -p <password>              (fetch decrypted snapshot via the bridge)
  bridge-push  -p <password>              (upload the local snapshot via the bridge)
  test-decrypt -p <password> -data <blob> (bridge decode diagnostic)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands over either the document store or the bridge.
func main() {
	// global flags
	user := flag.String("user", "", "owner user id")
	storeURL := flag.String("store-url", "", "document store base URL")
	projectID := flag.String("project-id", "", "document store project id")
	apiKey := flag.String("api-key", "", "document store API key")
	bridgeURL := flag.String("bridge-url", "", "mobile bridge base URL")
	dbFile := flag.String("db", dbPath(), "local snapshot database")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("gradesync %s (%s)\n", version, buildDate)

	case "import":
		fs := flag.NewFlagSet("import", flag.ExitOnError)
		file := fs.String("file", "", "subjects JSON file")
		_ = fs.Parse(flag.Args()[1:])
		requireUser(*user)
		if *file == "" {
			fmt.Fprintln(os.Stderr, "need -file")
			os.Exit(1)
		}

		raw, err := os.ReadFile(*file)
		if err != nil {
			fail(err)
		}
		var subjects []model.Subject
		if err := json.Unmarshal(raw, &subjects); err != nil {
			fail(fmt.Errorf("parse subjects: %w", err))
		}
		model.AssignIDs(subjects)

		store := openLocal(*dbFile)
		defer store.Close()
		snap := &model.Snapshot{OwnerID: *user, Subjects: subjects}
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			fail(err)
		}
		fmt.Printf("imported %d subjects\n", len(subjects))

	case "status":
		requireUser(*user)
		store := openLocal(*dbFile)
		defer store.Close()

		snap, err := store.LoadSnapshot(ctx, *user)
		if errors.Is(err, errs.ErrNotFound) {
			fmt.Println("no local snapshot; run import or pull first")
			return
		}
		if err != nil {
			fail(err)
		}
		for _, s := range snap.Subjects {
			fmt.Printf("%-24s avg %.2f  (%d grades)\n", s.Name, s.AverageGrade, len(s.Grades))
		}

	case "push":
		requireUser(*user)
		store := openLocal(*dbFile)
		sc := newSession(ctx, *user, *storeURL, *projectID, *apiKey, store, logger)
		defer func() { _ = sc.Shutdown(ctx) }()

		snap, err := store.LoadSnapshot(ctx, *user)
		if err != nil {
			fail(err)
		}
		report, err := gsync.NewReconciler(sc).Push(ctx, snap)
		if err != nil {
			fail(err)
		}
		fmt.Println(report.Summary())
		if report.Outcome() == model.SyncFailed {
			os.Exit(1)
		}

	case "pull":
		requireUser(*user)
		store := openLocal(*dbFile)
		sc := newSession(ctx, *user, *storeURL, *projectID, *apiKey, store, logger)
		defer func() { _ = sc.Shutdown(ctx) }()

		snap, err := gsync.NewReconciler(sc).Pull(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(snap)

	case "bridge-pull":
		fs := flag.NewFlagSet("bridge-pull", flag.ExitOnError)
		pw := fs.String("p", "", "account password")
		_ = fs.Parse(flag.Args()[1:])
		requireUser(*user)
		cli := bridgeClient(*bridgeURL, logger)

		snap, err := cli.Pull(ctx, *user, *pw)
		if err != nil {
			fail(err)
		}
		store := openLocal(*dbFile)
		defer store.Close()
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			fail(err)
		}
		printJSON(snap)

	case "bridge-push":
		fs := flag.NewFlagSet("bridge-push", flag.ExitOnError)
		pw := fs.String("p", "", "account password")
		_ = fs.Parse(flag.Args()[1:])
		requireUser(*user)
		cli := bridgeClient(*bridgeURL, logger)

		store := openLocal(*dbFile)
		defer store.Close()
		snap, err := store.LoadSnapshot(ctx, *user)
		if err != nil {
			fail(err)
		}
		if err := cli.Push(ctx, *user, *pw, snap); err != nil {
			fail(err)
		}
		fmt.Println("pushed")

	case "test-decrypt":
		fs := flag.NewFlagSet("test-decrypt", flag.ExitOnError)
		data := fs.String("data", "", "stored field value")
		_ = fs.Parse(flag.Args()[1:])
		requireUser(*user)
		if *data == "" {
			fmt.Fprintln(os.Stderr, "need -data")
			os.Exit(1)
		}
		cli := bridgeClient(*bridgeURL, logger)

		out, err := cli.TestDecrypt(ctx, *user, *data)
		if err != nil {
			fail(err)
		}
		printJSON(out)

	default:
		usage()
	}
}

func requireUser(user string) {
	if user == "" {
		fmt.Fprintln(os.Stderr, "need -user")
		os.Exit(1)
	}
}

func openLocal(path string) *local.Store {
	_ = os.MkdirAll(filepath.Dir(path), 0o700)
	store, err := local.Open(path)
	if err != nil {
		fail(err)
	}
	return store
}

// newSession wires a direct-store sync session. Key derivation runs in Init,
// once per invocation.
func newSession(ctx context.Context, user, storeURL, projectID, apiKey string, store *local.Store, logger *zap.Logger) *gsync.Context {
	if storeURL == "" {
		fail(errors.New("need -store-url"))
	}
	remote := docstore.New(docstore.Config{
		BaseURL:   storeURL,
		ProjectID: projectID,
		APIKey:    apiKey,
	}, logger)

	sc := gsync.NewContext(user, remote, logger)
	sc.Local = store
	if err := sc.Init(ctx); err != nil {
		fail(err)
	}
	return sc
}

func bridgeClient(baseURL string, logger *zap.Logger) *bridge.Client {
	if baseURL == "" {
		fail(errors.New("need -bridge-url"))
	}
	return bridge.New(bridge.Config{BaseURL: baseURL}, logger)
}
