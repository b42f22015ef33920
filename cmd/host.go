package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/roomid"
	"github.com/myooken/p2pShareDisplay/internal/ui"
)

var (
	flagHostPassword string
	flagHostFile     string
	flagHostLoop     bool
	flagHostFFmpeg   string
	flagHostDisplay  string
	flagHostFPS      int
	flagHostBitrate  string
	flagHostNoShare  bool
)

var hostCmd = &cobra.Command{
	Use:     "host [room-id|url]",
	Aliases: []string{"h"},
	Short:   "Open a room and share your screen",
	Long: `Open a room and share your screen with the guest who joins it.

Without a room id a new one is generated. If the room is already hosted
elsewhere you join it as a guest instead.

Examples:
  p2pshare host
  p2pshare host --password secret123
  p2pshare host --file demo.ivf --loop
  p2pshare host my-room --fps 30 --bitrate 2M`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := hostRoom(args)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Println(ui.RoomInfo{
			RoomID:   room,
			RoomLink: cfg.GetRoomLink(room),
			Password: flagHostPassword != "",
		}.View())
		fmt.Println()

		return runRoom(cmd.Context(), cfg, roomRequest{
			room:     room,
			password: flagHostPassword,
			ui: ui.RoomOptions{
				Link:      cfg.GetRoomLink(room),
				Source:    captureSource(),
				AutoShare: !flagHostNoShare,
			},
		})
	},
}

func hostRoom(args []string) (string, error) {
	if len(args) == 1 {
		return roomid.Parse(args[0])
	}
	return roomid.Generate()
}

func captureSource() media.Source {
	log := slog.Default().With("component", "capture")
	if flagHostFile != "" {
		return media.FileSource{Path: flagHostFile, Loop: flagHostLoop, Log: log}
	}
	return media.ScreenSource{
		FFmpeg:  flagHostFFmpeg,
		Display: flagHostDisplay,
		FPS:     flagHostFPS,
		Bitrate: flagHostBitrate,
		Log:     log,
	}
}

func init() {
	rootCmd.AddCommand(hostCmd)

	hostCmd.Flags().StringVarP(&flagHostPassword, "password", "p", "", "Room password")
	hostCmd.Flags().StringVarP(&flagHostFile, "file", "f", "", "Share a VP8 IVF file instead of the screen")
	hostCmd.Flags().BoolVar(&flagHostLoop, "loop", false, "Loop the shared file")
	hostCmd.Flags().StringVar(&flagHostFFmpeg, "ffmpeg", "ffmpeg", "ffmpeg binary used for screen capture")
	hostCmd.Flags().StringVar(&flagHostDisplay, "display", "", "Display to capture (platform specific)")
	hostCmd.Flags().IntVar(&flagHostFPS, "fps", 15, "Capture frame rate")
	hostCmd.Flags().StringVar(&flagHostBitrate, "bitrate", "1M", "Capture bitrate")
	hostCmd.Flags().BoolVar(&flagHostNoShare, "no-share", false, "Do not start sharing until s is pressed")
}
