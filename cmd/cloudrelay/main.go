package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/timechildgames/cloudrelay/internal/api"
	"github.com/timechildgames/cloudrelay/internal/auth"
	"github.com/timechildgames/cloudrelay/internal/config"
	"github.com/timechildgames/cloudrelay/internal/dispatch"
	"github.com/timechildgames/cloudrelay/internal/lock"
	"github.com/timechildgames/cloudrelay/internal/log"
	"github.com/timechildgames/cloudrelay/internal/relay"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const defaultConfigPath = "cloudrelay.yaml"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		if hasHelpFlag(args) {
			printStartHelp()
			return 0
		}
		return runStart(args)
	case "call":
		if hasHelpFlag(args) {
			printCallHelp()
			return 0
		}
		return runCall(args)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func configPathFlag(fs *flag.FlagSet) *string {
	def := defaultConfigPath
	if env := os.Getenv("CLOUDRELAY_CONFIG"); env != "" {
		def = env
	}
	return fs.String("config", def, "Path to configuration file")
}

// --- START ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := configPathFlag(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("cloudrelay starting", "version", version, "config", *configPath, "service", cfg.Service.Name)

	if cfg.Journal.Enabled {
		pidLockPath := lock.PathFor(cfg.Journal.Path)
		pidLock, err := lock.Acquire(pidLockPath)
		if err != nil {
			logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
			return 1
		}
		defer pidLock.Release()
		logger.Info("acquired PID lock", "path", pidLockPath)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r, err := relay.Open(ctx, cfg)
	if err != nil {
		logger.Error("failed to open relay", "error", err)
		return 1
	}
	defer r.Close()

	errCh := make(chan error, 2)
	go func() {
		if err := r.Run(ctx); err != nil {
			errCh <- fmt.Errorf("relay: %w", err)
		}
	}()

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{
				Token:  t.Token,
				Scopes: t.Scopes,
			})
		}
		apiConfig := api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
			Tokens: tokens,
		}
		opts := []api.Option{api.WithProbe(r.Monitor)}
		if r.Journal != nil {
			opts = append(opts, api.WithJournal(r.Journal))
		}
		apiServer := api.New(apiConfig, r.Dispatcher, r.Hub, log.WithComponent("api"), opts...)
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
	} else {
		logger.Info("api disabled; relay running without a host bridge")
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		return 1
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if err := r.Dispatcher.Wait(drainCtx); err != nil {
		logger.Warn("shutdown with requests still in flight", "outstanding", r.Dispatcher.Outstanding())
	}
	logger.Info("cloudrelay stopped", "issued", r.Dispatcher.Issued(), "unfetched", r.Dispatcher.Queued())
	return 0
}

// --- CALL ---

func runCall(args []string) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	configPath := configPathFlag(fs)
	timeout := fs.Duration("timeout", 30*time.Second, "How long to wait for the result")
	session := fs.String("session", "", "Session token to send with the call")
	verbose := fs.Bool("v", false, "Log at the configured level instead of errors only")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		printCallHelp()
		return 1
	}
	function := fs.Arg(0)
	params := fs.Arg(1)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	level := "error"
	if *verbose {
		level = cfg.Service.LogLevel
	}
	log.Setup(level, cfg.Service.LogFormat)

	// One-shot calls never hold the journal.
	cfg.Journal.Enabled = false

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r, err := relay.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open relay: %v\n", err)
		return 1
	}
	defer r.Close()

	id := r.Dispatcher.Submit(dispatch.Request{Function: function, Params: params, SessionToken: *session})

	waitCtx, waitCancel := context.WithTimeout(ctx, *timeout)
	defer waitCancel()
	if err := r.Dispatcher.Wait(waitCtx); err != nil {
		fmt.Fprintf(os.Stderr, "No result for request %d: %v\n", id, err)
		return 1
	}

	result, ok := r.Dispatcher.FetchNext()
	if !ok {
		fmt.Fprintf(os.Stderr, "No result for request %d\n", id)
		return 1
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render result: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	if !result.Succeeded() {
		return 2
	}
	return 0
}

// --- CONFIG ---

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := configPathFlag(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	fingerprint, err := config.Fingerprint(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash config: %v\n", err)
		return 1
	}

	fmt.Println("Configuration valid")
	fmt.Printf("  backend:    %s (%s transport, %s)\n", cfg.Backend.BaseURL, cfg.Transport.Kind, cfg.Transport.ErrorPrecedence)
	fmt.Printf("  api:        %s\n", enabledLabel(cfg.API.Enabled, cfg.API.Listen))
	fmt.Printf("  journal:    %s\n", enabledLabel(cfg.Journal.Enabled, cfg.Journal.Path))
	fmt.Printf("  blake3:     %s\n", fingerprint)
	return 0
}

func enabledLabel(enabled bool, detail string) string {
	if !enabled {
		return "disabled"
	}
	return "enabled (" + detail + ")"
}

// --- VERSION ---

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: cloudrelay version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("cloudrelay %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

// --- HELP ---

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`cloudrelay - asynchronous relay between a game host and its cloud backend

Usage:
  cloudrelay <command> [flags]

Commands:
  start                     Run the relay and, when enabled, the host bridge API
  call <function> [json]    Invoke one cloud function and print its result
  config check              Validate configuration and print its fingerprint
  version                   Show version information
  help                      Show this help message

All commands accept --config (default cloudrelay.yaml, or $CLOUDRELAY_CONFIG).
`)
}

func printStartHelp() {
	fmt.Println("Usage: cloudrelay start [--config PATH]")
	fmt.Println("Runs until SIGINT/SIGTERM. Takes a PID lock next to the journal when it is enabled.")
}

func printCallHelp() {
	fmt.Println("Usage: cloudrelay call [--config PATH] [--timeout 30s] [--session TOKEN] [-v] <function> [params-json]")
	fmt.Println("Exit status is 0 on success, 2 when the backend reported a failure, 1 on local errors.")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: cloudrelay config <action>")
	fmt.Fprintln(w, "Actions: check")
}
