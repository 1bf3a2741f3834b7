package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/interceptor"
	"github.com/getmockd/interceptd/pkg/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// EnvBaseURL is set for commands run by exec to the session base URL.
const EnvBaseURL = "INTERCEPTD_BASE_URL"

var execFlagVals struct {
	serverFlags
	handlers  string
	sessionID string
}

var execCmd = &cobra.Command{
	Use:   "exec --handlers FILE -- COMMAND [ARGS...]",
	Short: "Run a command against an ephemeral interceptor session",
	Long: `Start an interceptor server on a random local port, open a session, declare
the handlers from a handler file and run COMMAND. The command receives the
session base URL in INTERCEPTD_BASE_URL and the server URL in
INTERCEPTD_SERVER_URL.

When the command exits, every handler's times expectation is checked. exec
fails if the command fails or any expectation is not met.`,
	Example: `  interceptd exec --handlers api.yaml -- go test ./integration/...`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.ArgsLenAtDash() < 0 {
			return ErrNoCommand
		}
		return runExec(cmd, args[cmd.ArgsLenAtDash():])
	},
}

func init() {
	rootCmd.AddCommand(execCmd)

	f := &execFlagVals
	addServerFlags(execCmd, &f.serverFlags)
	execCmd.Flags().StringVarP(&f.handlers, "handlers", "f", "", "Handler file to declare (required)")
	execCmd.Flags().StringVar(&f.sessionID, "session", "", "Session id (default: generated)")
	_ = execCmd.MarkFlagRequired("handlers")
}

func runExec(cmd *cobra.Command, args []string) error {
	f := &execFlagVals
	if len(args) == 0 {
		return ErrNoCommand
	}

	file, err := config.LoadHandlerFile(f.handlers)
	if err != nil {
		return err
	}

	cfg, err := loadServerConfig(cmd, &f.serverFlags)
	if err != nil {
		return err
	}
	log, closeLog := newLogger(cmd, cfg)
	defer func() { _ = closeLog() }()

	// exec always binds a private port; --host still applies.
	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, "0"))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := server.New(cfg.Server(), server.WithLogger(log))
	serverURL := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		defer cancel()
		return runSession(gctx, cmd, sessionParams{
			serverURL: serverURL,
			secret:    cfg.TokenSecret,
			sessionID: f.sessionID,
			file:      file,
			log:       log,
		}, args)
	})
	return g.Wait()
}

type sessionParams struct {
	serverURL string
	secret    string
	sessionID string
	file      *config.HandlerFile
	log       *slog.Logger
}

// runSession opens a remote session, declares the handler file, runs the
// command and checks every expectation.
func runSession(ctx context.Context, cmd *cobra.Command, p sessionParams, args []string) error {
	opts := []interceptor.Option{
		interceptor.WithLogger(p.log),
		interceptor.WithSaveRequests(true),
	}
	if p.sessionID != "" {
		opts = append(opts, interceptor.WithSessionID(p.sessionID))
	}
	if p.secret != "" {
		token, err := server.NewToken([]byte(p.secret), "interceptd-exec", time.Hour)
		if err != nil {
			return err
		}
		opts = append(opts, interceptor.WithToken(token))
	}

	ic, err := interceptor.NewRemote(p.serverURL, opts...)
	if err != nil {
		return err
	}
	if err := ic.Start(ctx); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ic.Stop(stopCtx)
	}()

	handlers, err := p.file.Apply(ctx, ic)
	if err != nil {
		return fmt.Errorf("%s: %w", p.file.Path(), err)
	}
	p.log.Debug("handlers declared", "count", len(handlers), "session", ic.SessionID())

	env := []string{
		EnvBaseURL + "=" + ic.BaseURL(),
		config.EnvServerURL + "=" + p.serverURL,
	}
	runErr := runChild(ctx, cmd, args, env)

	checkErr := ic.CheckTimes(ctx)
	if checkErr != nil {
		checkErr = fmt.Errorf("expectations not met:\n%w", checkErr)
	}
	return errors.Join(runErr, checkErr)
}
