package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guseggert/webcli/internal/config"
	"github.com/guseggert/webcli/internal/eol"
	"github.com/guseggert/webcli/internal/files"
	"github.com/guseggert/webcli/server"
	"github.com/guseggert/webcli/terminal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"nhooyr.io/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "webcli",
		Usage: "bridge an interactive CLI to a remote terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "One of [debug,info,warn,error].",
				Value: cfg.Logging.Level,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve the terminal, spawning one CLI process per connection",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen-addr",
						Usage: "The address for the HTTP server to listen on.",
						Value: cfg.Server.ListenAddr(),
					},
					&cli.StringFlag{
						Name:  "cli-path",
						Usage: "Path to the CLI executable, launched with no arguments.",
						Value: cfg.Session.CLIPath,
					},
					&cli.DurationFlag{
						Name:  "idle-timeout",
						Usage: "Close sessions without input or output for this long. 0 disables.",
						Value: cfg.Session.IdleTimeout,
					},
					&cli.DurationFlag{
						Name:  "kill-grace",
						Usage: "Time between SIGTERM and SIGKILL when a client disconnects. 0 disables SIGKILL.",
						Value: cfg.Session.KillGrace,
					},
					&cli.StringFlag{
						Name:  "tls-cert",
						Usage: "Path to a PEM certificate to serve HTTPS with.",
						Value: cfg.Server.TLSCert,
					},
					&cli.StringFlag{
						Name:  "tls-key",
						Usage: "Path to the PEM private key for --tls-cert.",
						Value: cfg.Server.TLSKey,
					},
				},
				Action: serve,
			},
			{
				Name:  "attach",
				Usage: "attach this terminal to a webcli server (detach with Ctrl-])",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "url",
						Usage: "Base URL of the server.",
						Value: "http://localhost:" + cfg.Server.Port,
					},
					&cli.StringFlag{
						Name:  "ca-cert",
						Usage: "Path to a PEM CA certificate to trust for HTTPS.",
					},
					&cli.DurationFlag{
						Name:  "wait",
						Usage: "How long to wait for the server to become healthy.",
						Value: 10 * time.Second,
					},
					&cli.StringFlag{
						Name:  "history-file",
						Usage: "Keep the command history as JSON in this file, rewritten after every response.",
					},
				},
				Action: attach,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(ctx *cli.Context) (*zap.Logger, zapcore.Level, error) {
	level, err := zapcore.ParseLevel(ctx.String("log-level"))
	if err != nil {
		return nil, level, fmt.Errorf("parsing log level: %w", err)
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, level, fmt.Errorf("building logger: %w", err)
	}
	return logger, level, nil
}

func serve(ctx *cli.Context) error {
	logger, level, err := newLogger(ctx)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithLogLevel(level),
		server.WithListenAddr(ctx.String("listen-addr")),
		server.WithIdleTimeout(ctx.Duration("idle-timeout")),
		server.WithKillGrace(ctx.Duration("kill-grace")),
	}

	certPath, keyPath := ctx.String("tls-cert"), ctx.String("tls-key")
	if certPath != "" || keyPath != "" {
		certPEM, err := os.ReadFile(certPath)
		if err != nil {
			return fmt.Errorf("reading TLS cert: %w", err)
		}
		keyPEM, err := os.ReadFile(keyPath)
		if err != nil {
			return fmt.Errorf("reading TLS key: %w", err)
		}
		opts = append(opts, server.WithTLS(certPEM, keyPEM))
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working dir: %w", err)
	}
	cliPath := files.ResolveCLIPath(ctx.String("cli-path"), wd)

	srv, err := server.New(cliPath, opts...)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		if err := srv.Stop(); err != nil {
			logger.Sugar().Debugf("error stopping server: %s", err)
		}
	}()

	return srv.Run()
}

func attach(ctx *cli.Context) error {
	logger, level, err := newLogger(ctx)
	if err != nil {
		return err
	}
	// the terminal is ours while attached, so only errors go to the log
	if level < zapcore.ErrorLevel {
		level = zapcore.ErrorLevel
	}
	logger = logger.WithOptions(zap.IncreaseLevel(level))

	var clientOpts []server.ClientOption
	if caPath := ctx.String("ca-cert"); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return fmt.Errorf("reading CA cert: %w", err)
		}
		clientOpts = append(clientOpts, server.WithClientCA(caPEM))
	}
	client, err := server.NewClient(logger.Sugar(), ctx.String("url"), clientOpts...)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx.Context, ctx.Duration("wait"))
	defer cancel()
	if err := client.WaitForServer(waitCtx); err != nil {
		return fmt.Errorf("waiting for server: %w", err)
	}

	conn, err := client.Dial(ctx.Context)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("putting terminal in raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
	}

	historyPath := ctx.String("history-file")
	corr := terminal.NewCorrelator(historyRenderer(historyPath, logger.Sugar()))
	err = terminal.Attach(ctx.Context, conn, os.Stdin, eol.NewWriter(os.Stdout), corr)
	if err != nil {
		return err
	}

	// commands still awaiting a response are only written here
	if historyPath != "" {
		return writeHistory(historyPath, corr.History())
	}
	return nil
}

// historyRenderer rewrites the history file every time a response is recorded.
func historyRenderer(path string, log *zap.SugaredLogger) func([]terminal.HistoryEntry) {
	return func(history []terminal.HistoryEntry) {
		if path == "" {
			log.Debugf("history has %d entries", len(history))
			return
		}
		if err := writeHistory(path, history); err != nil {
			log.Errorf("rendering history: %s", err)
		}
	}
}

func writeHistory(path string, history []terminal.HistoryEntry) error {
	b, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}
