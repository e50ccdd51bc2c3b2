package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/querydeck/internal/api"
	"github.com/mattjoyce/querydeck/internal/bridge"
	"github.com/mattjoyce/querydeck/internal/command"
	"github.com/mattjoyce/querydeck/internal/config"
	"github.com/mattjoyce/querydeck/internal/doctor"
	"github.com/mattjoyce/querydeck/internal/events"
	"github.com/mattjoyce/querydeck/internal/inspect"
	"github.com/mattjoyce/querydeck/internal/lock"
	"github.com/mattjoyce/querydeck/internal/log"
	"github.com/mattjoyce/querydeck/internal/panel"
	"github.com/mattjoyce/querydeck/internal/plugin"
	_ "github.com/mattjoyce/querydeck/internal/plugins/history"
	_ "github.com/mattjoyce/querydeck/internal/plugins/sqlite"
	"github.com/mattjoyce/querydeck/internal/query"
	"github.com/mattjoyce/querydeck/internal/state"
	"github.com/mattjoyce/querydeck/internal/storage"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const defaultConfigPath = "querydeck.yaml"

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

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "host":
		return runHostNoun(args)

	// --- ROOT COMMANDS ---
	case "start":
		return runStart(args)
	case "panel":
		return runPanel(args)
	case "inspect":
		return runInspect(args)
	case "doctor":
		return runDoctor(args)
	case "version":
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

func runHostNoun(nounArgs []string) int {
	if len(nounArgs) < 1 || isHelpToken(nounArgs[0]) {
		printHostNounHelp(os.Stdout)
		return 0
	}

	action := nounArgs[0]
	actionArgs := nounArgs[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "help":
		printHostNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown host action: %s\n", action)
		return 1
	}
}

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

func printHostNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: querydeck host <action>")
	fmt.Fprintln(w, "Actions: start")
}

func printStartHelp() {
	fmt.Println("Usage: querydeck host start [--config PATH]")
	fmt.Println("Start the query host in the foreground.")
}

func printUsage() {
	fmt.Println(`querydeck - query host and results panel

Usage:
  querydeck <command> [flags]

Commands:
  host start    Start the query host (panel socket + optional status API)
  panel         Attach the results panel TUI to a running host
  inspect       Report on the persisted host state
  doctor        Validate the configuration
  version       Show version information
  help          Show this help

Run 'querydeck <command> --help' for command flags.`)
}

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
		fmt.Fprintln(os.Stderr, "Usage: querydeck version [--json]")
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

	fmt.Printf("querydeck %s\n", info.Version)
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

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalized
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// --- ACTION IMPLEMENTATIONS ---

// logReporter routes isolated plugin failures into the structured log.
type logReporter struct {
	logger *slog.Logger
}

func (r *logReporter) Report(msg string, err error) {
	r.logger.Error(msg, "error", err)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("querydeck starting", "version", version, "config", *configPath)

	pidLockPath := getPIDLockPath(cfg)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open state database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	if err := storage.BootstrapSQLite(ctx, db); err != nil {
		logger.Error("failed to bootstrap state database", "error", err)
		return 1
	}
	logger.Info("state database opened", "path", cfg.State.Path)

	st := state.NewStore(db)
	recorder := state.NewDebounced(st, 0)
	defer recorder.Close()

	bus := command.NewBus()
	dispatcher := command.NewDispatcher(cfg.Service.Namespace, bus)
	hooks := command.NewHooks(bus)

	runner := query.NewExecutor()
	defer runner.Close()
	for _, conn := range cfg.Connections {
		if err := runner.AddConnection(conn.ID, conn.DSN); err != nil {
			logger.Error("failed to open connection", "conn_id", conn.ID, "error", err)
			return 1
		}
		logger.Info("connection opened", "conn_id", conn.ID)
	}

	hub := events.NewHub(256)

	handle := &plugin.Handle{
		Commands: dispatcher,
		Hooks:    hooks,
		Bus:      bus,
		Store:    st,
		Runner:   runner,
		DB:       db,
		Logger:   log.WithComponent("plugin"),
	}
	registry := plugin.NewRegistry(handle, &logReporter{logger: log.WithComponent("plugin")}, recorder)
	registry.Register(plugin.Builtins(cfg.PluginEnabled)...)
	registry.LoadPlugins(ctx)
	logger.Info("plugins loaded", "plugins", registry.LoadedNames(), "commands", len(dispatcher.Names()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	listener, err := listenPanelSocket(cfg.Panel.Socket)
	if err != nil {
		logger.Error("failed to listen on panel socket", "socket", cfg.Panel.Socket, "error", err)
		return 1
	}
	defer listener.Close()
	defer os.Remove(cfg.Panel.Socket)
	logger.Info("panel socket listening", "socket", cfg.Panel.Socket)

	go servePanelSocket(ctx, listener, dispatcher, st, hub, errCh)

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
		}, dispatcher, registry, hub)
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("querydeck running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("querydeck stopped")
	return 0
}

func getPIDLockPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.State.Path), "querydeck.pid")
}

// listenPanelSocket binds the unix socket, clearing any stale socket file a
// crashed host left behind. The PID lock already guarantees single instance.
func listenPanelSocket(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	return net.Listen("unix", socketPath)
}

// servePanelSocket accepts panel connections for the life of ctx. Each
// connection gets its own bridge session; session failures are logged and the
// accept loop keeps going.
func servePanelSocket(ctx context.Context, listener net.Listener, d *command.Dispatcher, st *state.Store, hub *events.Hub, errCh chan<- error) {
	logger := log.WithComponent("main")

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			errCh <- fmt.Errorf("panel socket: %w", err)
			return
		}

		go func() {
			defer conn.Close()
			session := bridge.NewSession(conn, d, st, hub)
			if err := session.Run(ctx); err != nil && err != context.Canceled {
				logger.Warn("panel session ended with error", "error", err)
			}
		}()
	}
}

func runPanel(args []string) int {
	fs := flag.NewFlagSet("panel", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	socketPath := fs.String("socket", "", "Panel socket path (overrides config)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *socketPath == "" {
		cfg, err := config.LoadOrDefault(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		*socketPath = cfg.Panel.Socket
	}

	// The panel logs to stderr while bubbletea owns stdout.
	log.Setup("ERROR")

	conn, err := net.Dial("unix", *socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to host at %s (is 'querydeck host start' running?): %v\n", *socketPath, err)
		return 1
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := panel.NewChannel(conn)
	m := panel.NewModel(ch)
	p := tea.NewProgram(m)

	go func() {
		if err := ch.Run(ctx); err != nil {
			p.Quit()
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state database: %v\n", err)
		return 1
	}
	defer db.Close()
	if err := storage.BootstrapSQLite(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap state database: %v\n", err)
		return 1
	}

	var out string
	if *jsonOut {
		out, err = inspect.BuildJSONReport(ctx, db, cfg.State.Path)
	} else {
		out, err = inspect.BuildReport(ctx, db, cfg.State.Path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build report: %v\n", err)
		return 1
	}

	fmt.Println(out)
	return 0
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output report as JSON")
	hashUpdate := fs.Bool("hash-update", false, "Regenerate the config checksum file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *hashUpdate {
		if err := config.WriteChecksum(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write checksum: %v\n", err)
			return 1
		}
		fmt.Printf("Checksum written for %s\n", *configPath)
		return 0
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	checksumPath := *configPath
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		checksumPath = ""
	}

	available := make([]string, 0)
	for _, p := range plugin.Builtins(nil) {
		available = append(available, p.Name())
	}

	result := doctor.New(cfg, checksumPath, available).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}
