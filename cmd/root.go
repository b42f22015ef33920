package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/myooken/p2pShareDisplay/internal/config"
	"github.com/myooken/p2pShareDisplay/internal/ui"
	"github.com/myooken/p2pShareDisplay/internal/version"
)

var (
	flagPeerHost     string
	flagPeerPort     int
	flagPeerPath     string
	flagPeerKey      string
	flagPeerInsecure bool
	flagSTUN         string
	flagTURN         string
	flagTURNUser     string
	flagTURNPass     string
	flagRelay        bool
	flagWebURL       string
	flagAuthTimeout  time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "p2pshare",
	Short: "Peer-to-peer screen sharing with a shared cursor, over WebRTC",
	Long: `p2pshare shares a screen between two peers over WebRTC. The first peer to
open a room hosts it; the next one joins as a guest, proves the room password
and sees the host's screen while pointing at it with a shared cursor.

Rendezvous uses the PeerJS protocol, either against a public PeerJS server
or a self-hosted "p2pshare broker".`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

// loadConfig resolves configuration from the persistent flags of cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := config.Options{
		PeerHost:   flagPeerHost,
		PeerPort:   flagPeerPort,
		PeerPath:   flagPeerPath,
		PeerKey:    flagPeerKey,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
		WebURL:     flagWebURL,
	}
	flags := cmd.Flags()
	if flags.Changed("insecure") {
		secure := !flagPeerInsecure
		opts.PeerSecure = &secure
	}
	if flags.Changed("auth-timeout") {
		opts.AuthTimeout = &flagAuthTimeout
	}

	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagPeerHost, "peer-host", "", "Rendezvous server host")
	pf.IntVar(&flagPeerPort, "peer-port", 0, "Rendezvous server port")
	pf.StringVar(&flagPeerPath, "peer-path", "", "Rendezvous server path")
	pf.StringVar(&flagPeerKey, "peer-key", "", "Rendezvous API key")
	pf.BoolVar(&flagPeerInsecure, "insecure", false, "Use http/ws instead of https/wss for the rendezvous server")
	pf.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	pf.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	pf.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	pf.StringVar(&flagWebURL, "web-url", "", "Base URL of shareable room links")
	pf.DurationVar(&flagAuthTimeout, "auth-timeout", config.DefaultAuthTimeout, "How long a host waits for a guest's password (0 disables)")
}
