package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/marcin-skalski/gitlab-hud/internal/config"
	"github.com/marcin-skalski/gitlab-hud/internal/gitlab"
	"github.com/marcin-skalski/gitlab-hud/internal/hud"
	"github.com/marcin-skalski/gitlab-hud/internal/logging"
	"github.com/marcin-skalski/gitlab-hud/internal/store"
	"github.com/marcin-skalski/gitlab-hud/internal/sync"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.gitlab-hud/config.yaml)")
	includeDrafts := flag.Bool("include-drafts", false, "include drafts and work-in-progress MRs in the HUD")
	setup := flag.Bool("setup", false, "write a default config and open it in $EDITOR")
	clearCache := flag.Bool("clear-cache", false, "delete the local cache and exit")
	verbose := flag.Bool("verbose", false, "log to stderr at debug level")
	flag.Parse()

	if err := run(*configPath, *includeDrafts, *setup, *clearCache, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, includeDrafts, setup, clearCache, verbose bool) error {
	if configPath == "" {
		var err error
		configPath, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	if setup {
		return runSetup(configPath)
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}
	cacheDir := filepath.Join(dataDir, "cache")

	if clearCache {
		return os.RemoveAll(cacheDir)
	}

	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("no config at %s — run gitlab-hud --setup first", configPath)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	// Quiet unless verbose: the table goes to stdout and log lines
	// should not interleave with it.
	logger, err := logging.Setup(cfg.Log.File, level, !verbose)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer logging.CloseFile()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	st, err := store.Open(filepath.Join(cacheDir, "hud.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	client := gitlab.NewClient(gitlab.Config{
		BaseURL:      cfg.GitLab.URL,
		Token:        cfg.GitLab.Token,
		ProjectID:    cfg.GitLab.ProjectID,
		TargetBranch: cfg.GitLab.TargetBranch,
	}, &http.Client{Timeout: 30 * time.Second}, logger)

	engine := sync.New(client, st, sync.Options{
		PerPage:  cfg.Sync.PerPage,
		MaxFetch: cfg.Sync.MaxFetch,
	}, logger)

	res, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	rows := hud.Assemble(res.MergeRequests, cfg.Username, includeDrafts)
	fmt.Println(hud.Render(rows, time.Now()))

	if res.Truncated {
		fmt.Fprintln(os.Stderr, "note: more remote changes pending, run again to finish syncing")
	}
	return nil
}

// runSetup writes the skeleton config if missing and hands it to the
// user's editor, like the original first-run flow.
func runSetup(configPath string) error {
	if err := config.WriteDefault(configPath); err != nil {
		return err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	cmd := exec.Command(editor, configPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("open %s in %s: %w", configPath, editor, err)
	}
	return nil
}
