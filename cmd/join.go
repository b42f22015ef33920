package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/roomid"
	"github.com/myooken/p2pShareDisplay/internal/session"
	"github.com/myooken/p2pShareDisplay/internal/ui"
)

var (
	flagJoinPassword string
	flagJoinRecord   string
	flagJoinMode     string
	flagJoinColor    string
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join a room and view the host's screen",
	Long: `Join a room as a guest, view the host's screen and point at it with
a shared cursor.

Examples:
  p2pshare join abc123
  p2pshare join https://share.example.com/#/room/abc123 --password secret123
  p2pshare join abc123 --record session.ivf --cursor-mode click`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := roomid.Parse(args[0])
		if err != nil {
			return err
		}
		if room != args[0] {
			ui.PrintSuccessf("Extracted room ID: %s", room)
		}
		mode, err := session.ParsePointerMode(flagJoinMode)
		if err != nil {
			return err
		}
		if flagJoinColor != "" && !validColor(flagJoinColor) {
			return fmt.Errorf("cursor colour must be one of %v", session.CursorPalette)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		player := media.NewPlayer(flagJoinRecord, slog.Default().With("component", "player"))
		return runRoom(cmd.Context(), cfg, roomRequest{
			room:     room,
			password: flagJoinPassword,
			renderer: player,
			ui: ui.RoomOptions{
				Link:        cfg.GetRoomLink(room),
				Player:      player,
				PointerMode: mode,
				CursorColor: flagJoinColor,
			},
		})
	},
}

func validColor(c string) bool {
	for _, p := range session.CursorPalette {
		if p == c {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagJoinPassword, "password", "p", "", "Room password")
	joinCmd.Flags().StringVar(&flagJoinRecord, "record", "", "Record the received stream to this IVF file")
	joinCmd.Flags().StringVar(&flagJoinMode, "cursor-mode", "always", "Share the cursor always or only while clicking (always|click)")
	joinCmd.Flags().StringVar(&flagJoinColor, "color", "", "Cursor colour from the palette")
}
