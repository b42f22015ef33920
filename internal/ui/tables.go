package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/myooken/p2pShareDisplay/internal/config"
	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/session"
	"github.com/myooken/p2pShareDisplay/internal/utils"
)

// Summary describes a finished room session.
type Summary struct {
	Room     string
	Role     session.Role
	Status   string
	Endpoint string
	Duration time.Duration
	Playback media.PlaybackStats
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Color.Header = text.Colors{text.Bold, text.FgHiBlue}
	t.AppendHeader(table.Row{"Setting", "Value"})
	return t
}

// SummaryView renders s as a two column table.
func SummaryView(s Summary) string {
	t := newTable("Session Summary")
	t.AppendRows([]table.Row{
		{"Room", s.Room},
		{"Role", s.Role.String()},
		{"Final status", s.Status},
		{"Endpoint", dash(s.Endpoint)},
		{"Duration", utils.FormatTimeDuration(s.Duration)},
	})
	if s.Playback.StreamID != "" {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Stream", s.Playback.StreamID},
			{"Packets", s.Playback.Packets},
			{"Received", utils.FormatSize(int64(s.Playback.Bytes))},
			{"Recording", dash(s.Playback.Recording)},
		})
	}
	return t.Render()
}

// ConfigView renders the resolved configuration. Secrets are masked.
func ConfigView(cfg *config.Config) string {
	t := newTable("Configuration")
	t.AppendRows([]table.Row{
		{"Peer host", cfg.Peer.Host},
		{"Peer port", strconv.Itoa(cfg.Peer.Port)},
		{"Peer path", cfg.Peer.Path},
		{"Peer secure", strconv.FormatBool(cfg.Peer.Secure)},
		{"Peer key", cfg.Peer.Key},
		{"Serialization", cfg.Peer.Serialization},
		{"Rendezvous", cfg.Peer.HTTPBase()},
	})
	t.AppendSeparator()
	user, pass := cfg.GetTURNCredentials()
	t.AppendRows([]table.Row{
		{"STUN", dash(cfg.STUNServer)},
		{"TURN", dash(cfg.TURNServer)},
		{"TURN user", dash(user)},
		{"TURN password", mask(pass)},
		{"Force relay", strconv.FormatBool(cfg.ForceRelay)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Web URL", dash(cfg.WebURL)},
		{"Grace period", cfg.GracePeriod.String()},
		{"Auth timeout", authTimeout(cfg.AuthTimeout)},
		{"Fail close delay", cfg.FailCloseDelay.String()},
		{"Retry delay", cfg.RetryDelay.String()},
		{"Heartbeat", cfg.Heartbeat.String()},
	})
	return t.Render()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func mask(s string) string {
	if s == "" {
		return "-"
	}
	return "********"
}

func authTimeout(d time.Duration) string {
	if d == 0 {
		return "disabled"
	}
	return fmt.Sprint(d)
}
