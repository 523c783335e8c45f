// Command beach-client is a reference terminal-sync client: it connects to
// a signaling broker, negotiates a WebRTC data channel, and renders the
// synchronized terminal grid in the local TTY using tcell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/alidow/beach/pkg/config"
	"github.com/alidow/beach/pkg/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "beach-client:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		signalURL  string
		sessionID  string
		passphrase string
		peerID     string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "beach-client",
		Short: "Attach to a terminal session over a WebRTC data channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(runOptions{
				configPath: configPath,
				signalURL:  signalURL,
				sessionID:  sessionID,
				passphrase: passphrase,
				peerID:     peerID,
				verbose:    verbose,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file (overridden by flags below)")
	flags.StringVar(&signalURL, "signaling-url", "", "signaling broker base URL")
	flags.StringVar(&sessionID, "session-id", "", "target session id")
	flags.StringVar(&passphrase, "passphrase", "", "session passphrase (enables the secure transport)")
	flags.StringVar(&peerID, "peer-id", "", "local peer id (random if empty)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.SortFlags = false

	return cmd
}

type runOptions struct {
	configPath string
	signalURL  string
	sessionID  string
	passphrase string
	peerID     string
	verbose    bool
}

func run(opts runOptions) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("stdout is not a terminal")
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if cfg.SignalingURL == "" || cfg.SessionID == "" {
		return fmt.Errorf("signaling-url and session-id are required (via flags or --config)")
	}

	logger := zap.NewNop()
	if opts.verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			logger = l
		}
	}
	defer logger.Sync()

	peerID := opts.peerID
	if peerID == "" {
		peerID = randomPeerID()
	}

	ui, err := newTerminalUI()
	if err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer ui.Close()

	sess := session.New(cfg, peerID, ui.onStateChange, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sigCh
		sess.Close()
		cancel()
	}()

	return ui.Run(ctx, sess)
}

func loadConfig(opts runOptions) (config.Options, error) {
	var cfg config.Options
	var err error
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return config.Options{}, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Defaults()
	}

	if opts.signalURL != "" {
		cfg.SignalingURL = opts.signalURL
	}
	if opts.sessionID != "" {
		cfg.SessionID = opts.sessionID
	}
	if opts.passphrase != "" {
		cfg.Passphrase = opts.passphrase
	}
	return cfg, nil
}
