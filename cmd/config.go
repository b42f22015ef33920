package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/myooken/p2pShareDisplay/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after applying flags, environment variables
(P2PSHARE_*, STUN_SERVER, TURN_*) and the P2PSHARE_PEER_CONFIG override.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fmt.Println(ui.ConfigView(cfg))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
