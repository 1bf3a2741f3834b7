package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// serverFlags are the server settings shared by serve and exec.
type serverFlags struct {
	host            string
	port            int
	readTimeout     int
	writeTimeout    int
	shutdownTimeout int
	logLevel        string
	logFormat       string
	logFile         string
	tokenSecret     string
	requireAuth     bool
}

// serveFlagVals is the package-level instance bound to cobra flags.
var serveFlagVals struct {
	serverFlags
	ephemeral bool
	onReady   string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the interceptor server (foreground)",
	Long: `Start the interceptor server. Clients open sessions on
ws://HOST:PORT/__interceptd/ws and intercepted traffic is served at
http://HOST:PORT/<session>/<path>.

With --on-ready, the given command runs once the server is listening and the
server stops when it exits. The command receives INTERCEPTD_SERVER_URL.`,
	Example: `  # Start with defaults on 127.0.0.1:4380
  interceptd serve

  # Listen on all interfaces and require session tokens
  interceptd serve --host 0.0.0.0 --require-auth --token-secret "$SECRET"

  # Run a test suite against a server on a random port
  interceptd serve --ephemeral --on-ready "go test ./..."`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := &serveFlagVals
	addServerFlags(serveCmd, &f.serverFlags)
	serveCmd.Flags().BoolVar(&f.ephemeral, "ephemeral", false, "Listen on a random free port")
	serveCmd.Flags().StringVar(&f.onReady, "on-ready", "", "Command to run once the server is listening; the server stops when it exits")
}

func addServerFlags(cmd *cobra.Command, f *serverFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.host, "host", config.DefaultHost, "Listen host")
	flags.IntVarP(&f.port, "port", "p", config.DefaultPort, "Listen port")
	flags.IntVar(&f.readTimeout, "read-timeout", config.DefaultReadTimeout, "Read timeout in seconds")
	flags.IntVar(&f.writeTimeout, "write-timeout", config.DefaultWriteTimeout, "Write timeout in seconds")
	flags.IntVar(&f.shutdownTimeout, "shutdown-timeout", config.DefaultShutdownTimeout, "Graceful shutdown timeout in seconds")
	flags.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "Log format (text, json)")
	flags.StringVar(&f.logFile, "log-file", "", "Also write JSON logs to this rotating file")
	flags.StringVar(&f.tokenSecret, "token-secret", "", "Secret used to verify session tokens")
	flags.BoolVar(&f.requireAuth, "require-auth", false, "Refuse to start without a token secret")
}

// loadServerConfig merges defaults, config files, environment and the
// flags the user changed, in increasing precedence.
func loadServerConfig(cmd *cobra.Command, f *serverFlags) (*config.ServerConfig, error) {
	cfg, err := config.LoadAll()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	fromFlags := &config.ServerConfig{SetFields: map[string]bool{}}
	if flags.Changed("host") {
		fromFlags.Host = f.host
	}
	if flags.Changed("port") {
		fromFlags.Port = f.port
	}
	if flags.Changed("read-timeout") {
		fromFlags.ReadTimeout = f.readTimeout
	}
	if flags.Changed("write-timeout") {
		fromFlags.WriteTimeout = f.writeTimeout
	}
	if flags.Changed("shutdown-timeout") {
		fromFlags.ShutdownTimeout = f.shutdownTimeout
	}
	if flags.Changed("log-level") {
		fromFlags.LogLevel = f.logLevel
	}
	if flags.Changed("log-format") {
		fromFlags.LogFormat = f.logFormat
	}
	if flags.Changed("log-file") {
		fromFlags.LogFile = f.logFile
	}
	if flags.Changed("token-secret") {
		fromFlags.TokenSecret = f.tokenSecret
	}
	if flags.Changed("require-auth") {
		fromFlags.RequireAuth = f.requireAuth
		fromFlags.SetFields["requireAuth"] = true
	}
	config.MergeConfig(cfg, fromFlags, config.SourceFlag)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger returns the command logger and a function closing its log file.
func newLogger(cmd *cobra.Command, cfg *config.ServerConfig) (*slog.Logger, func() error) {
	lc := cfg.Logging()
	lc.Output = cmd.ErrOrStderr()
	return logging.Open(lc)
}

func runServe(cmd *cobra.Command) error {
	f := &serveFlagVals
	cfg, err := loadServerConfig(cmd, &f.serverFlags)
	if err != nil {
		return err
	}
	if f.ephemeral {
		cfg.Port = 0
		cfg.Sources["port"] = config.SourceFlag
	}
	log, closeLog := newLogger(cmd, cfg)
	defer func() { _ = closeLog() }()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}
	srv := server.New(cfg.Server(), server.WithLogger(log))
	serverURL := "http://" + ln.Addr().String()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "interceptd listening on %s\n", serverURL)
	if f.onReady == "" {
		return srv.Serve(ctx, ln)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		defer cancel()
		args := strings.Fields(f.onReady)
		env := []string{config.EnvServerURL + "=" + serverURL}
		return runChild(gctx, cmd, args, env)
	})
	return g.Wait()
}

// runChild runs args with the CLI's stdio and extra environment.
func runChild(ctx context.Context, cmd *cobra.Command, args, env []string) error {
	if len(args) == 0 {
		return ErrNoCommand
	}
	child := exec.CommandContext(ctx, args[0], args[1:]...)
	child.Env = append(os.Environ(), env...)
	child.Stdin = os.Stdin
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	return childError(args[0], child.Run())
}
