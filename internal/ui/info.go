package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mdp/qrterminal/v3"
)

// RoomInfo is printed by the host before the room UI starts.
type RoomInfo struct {
	RoomID   string
	RoomLink string
	Password bool
}

func (r RoomInfo) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Room Ready\n\n%s Room ID:    %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
	)
	if r.RoomLink != "" {
		fmt.Fprintf(&b, "\n%s Room Link:  %s", IconLink, MutedStyle.Render(r.RoomLink))
	}
	if r.Password {
		fmt.Fprintf(&b, "\n%s Password protected", IconLock)
	}

	box := SuccessBoxStyle.Render(b.String())
	if r.RoomLink == "" {
		return box
	}
	return lipgloss.JoinVertical(lipgloss.Left, box, "", fmt.Sprintf("%s Scan to join", IconQR), QRCode(r.RoomLink))
}

// QRCode renders text as a half-block terminal QR code.
func QRCode(text string) string {
	var b strings.Builder
	qrterminal.GenerateHalfBlock(text, qrterminal.L, &b)
	return strings.TrimRight(b.String(), "\n")
}
