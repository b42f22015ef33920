package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/myooken/p2pShareDisplay/internal/broker"
	"github.com/myooken/p2pShareDisplay/internal/ui"
)

var (
	flagBrokerAddr    string
	flagBrokerPath    string
	flagBrokerKey     string
	flagBrokerSecret  string
	flagBrokerRedis   string
	flagBrokerExpire  time.Duration
	flagBrokerAlive   time.Duration
	flagBrokerRelease bool

	flagTokenSecret string
	flagTokenName   string
	flagTokenTTL    time.Duration
)

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run a PeerJS compatible rendezvous server",
	Long: `Run a self-hosted rendezvous server speaking the PeerJS protocol.

With --redis several broker instances share id claims and relay frames to
each other. With --jwt-secret clients authenticate with signed API keys
issued by "p2pshare broker token" instead of the static --key.

Examples:
  p2pshare broker
  p2pshare broker --addr :9000 --redis redis://localhost:6379/0
  p2pshare broker --jwt-secret $SECRET`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := broker.Options{
			Addr:          flagBrokerAddr,
			Path:          flagBrokerPath,
			Key:           flagBrokerKey,
			JWTSecret:     envOr(flagBrokerSecret, "P2PSHARE_BROKER_SECRET"),
			RedisURL:      envOr(flagBrokerRedis, "REDIS_URL"),
			ExpireTimeout: flagBrokerExpire,
			AliveTimeout:  flagBrokerAlive,
			Release:       flagBrokerRelease,
		}

		var sp *ui.SimpleSpinner
		if opts.RedisURL != "" {
			sp = ui.NewConnectionSpinner("Connecting to Redis...")
			sp.Start()
		}
		srv, err := broker.New(cmd.Context(), opts, slog.Default())
		if sp != nil {
			if err != nil {
				sp.Error("Redis unavailable")
			} else {
				sp.Success("Connected to Redis")
			}
		}
		if err != nil {
			return err
		}

		ui.PrintSuccessf("Broker listening on %s", opts.Addr)
		return srv.Run(cmd.Context())
	},
}

var brokerTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed API key for a broker started with --jwt-secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := envOr(flagTokenSecret, "P2PSHARE_BROKER_SECRET")
		if secret == "" {
			return fmt.Errorf("a secret is required (--secret or P2PSHARE_BROKER_SECRET)")
		}
		key, err := broker.IssueKey(secret, flagTokenName, flagTokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

func envOr(v, env string) string {
	if v != "" {
		return v
	}
	return os.Getenv(env)
}

func init() {
	rootCmd.AddCommand(brokerCmd)
	brokerCmd.AddCommand(brokerTokenCmd)

	f := brokerCmd.Flags()
	f.StringVar(&flagBrokerAddr, "addr", broker.DefaultAddr, "Listen address")
	f.StringVar(&flagBrokerPath, "path", broker.DefaultPath, "Mount path of the PeerJS routes")
	f.StringVar(&flagBrokerKey, "key", broker.DefaultKey, "Static API key")
	f.StringVar(&flagBrokerSecret, "jwt-secret", "", "Accept signed API keys instead of the static key")
	f.StringVar(&flagBrokerRedis, "redis", "", "Redis URL for multi-instance deployments (default $REDIS_URL)")
	f.DurationVar(&flagBrokerExpire, "expire-timeout", broker.DefaultExpireTimeout, "How long an offer waits for an absent peer")
	f.DurationVar(&flagBrokerAlive, "alive-timeout", broker.DefaultAliveTimeout, "How long an id claim outlives its last heartbeat")
	f.BoolVar(&flagBrokerRelease, "release", false, "Run gin in release mode")

	tf := brokerTokenCmd.Flags()
	tf.StringVar(&flagTokenSecret, "secret", "", "Signing secret (default $P2PSHARE_BROKER_SECRET)")
	tf.StringVar(&flagTokenName, "name", "p2pshare", "Name recorded in the key")
	tf.DurationVar(&flagTokenTTL, "ttl", 0, "Key lifetime (0 never expires)")
}
