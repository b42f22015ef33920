package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/myooken/p2pShareDisplay/internal/config"
	"github.com/myooken/p2pShareDisplay/internal/logging"
	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/session"
	"github.com/myooken/p2pShareDisplay/internal/signaling"
	"github.com/myooken/p2pShareDisplay/internal/ui"
	"github.com/myooken/p2pShareDisplay/internal/utils"
)

// roomRequest is what host and join hand to runRoom.
type roomRequest struct {
	room     string
	password string
	renderer media.Renderer
	ui       ui.RoomOptions
}

// runRoom mounts a room view over the configured rendezvous server and runs
// the room UI until the user quits.
func runRoom(ctx context.Context, cfg *config.Config, req roomRequest) error {
	if notice := relayNotice(cfg, utils.RelayReason()); notice != "" {
		ui.PrintWarning(notice)
	}

	log := slog.Default()
	registry := session.NewRegistry(signaling.Opener(cfg, log), cfg.GracePeriod, log)
	defer registry.Close()

	events := ui.NewEvents()
	view, err := session.Mount(ctx, session.Options{
		Room:           req.room,
		Password:       req.password,
		Registry:       registry,
		Renderer:       req.renderer,
		OnEvent:        events.Publish,
		Log:            log,
		AuthTimeout:    cfg.AuthTimeout,
		FailCloseDelay: cfg.FailCloseDelay,
		RetryDelay:     cfg.RetryDelay,
		PointerMode:    req.ui.PointerMode,
		CursorColor:    req.ui.CursorColor,
	})
	if err != nil {
		return session.NewRoomError("mount room", req.room, err)
	}

	req.ui.Logs = logging.Recent()
	model := ui.NewRoomModel(ctx, view, events, req.ui)
	runErr := ui.RunRoom(ctx, model)
	view.Unmount()

	fmt.Println()
	fmt.Println(ui.SummaryView(model.Summary()))
	return runErr
}

// relayNotice explains how the network hint in reason affects the call path,
// or returns "" when there is nothing worth saying.
func relayNotice(cfg *config.Config, reason string) string {
	switch {
	case reason == "" || cfg.ForceRelay:
		return ""
	case cfg.GetTURNServers() == nil:
		return fmt.Sprintf("Direct connection may fail (%s) and no TURN server is configured", reason)
	}
	return fmt.Sprintf("Routing media through TURN (%s)", reason)
}
