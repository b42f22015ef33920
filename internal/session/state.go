package session

import (
	"github.com/myooken/p2pShareDisplay/internal/peer"
)

// Role is the part a room view plays once resolved.
type Role int

const (
	RoleUnresolved Role = iota
	RoleHost
	RoleGuest
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleGuest:
		return "guest"
	}
	return "unresolved"
}

// Status is the closed set of phases shown to the user.
type Status int

const (
	StatusInitializing Status = iota
	StatusWaitingForGuest
	StatusVerifyingGuest
	StatusConnectingToHost
	StatusConnected
	StatusAuthFailed
	StatusConnectionClosed
	StatusConnectionError
	StatusError
)

// AuthState tracks the handshake from the guest's side.
type AuthState int

const (
	AuthNotSent AuthState = iota
	AuthSent
	AuthAccepted
	AuthRejected
)

// HostPhase tracks the single guest slot of a host.
type HostPhase int

const (
	HostWaiting HostPhase = iota
	HostVerifying
	HostConnected
	HostRejected
)

// State is the tagged union of session states. Every implementation is
// listed in Display; there are no others.
type State interface {
	Status() Status
	Role() Role
	isState()
}

type Unresolved struct{}

// Hosting is the host role; Guest is the peer currently holding the slot.
type Hosting struct {
	Phase HostPhase
	Guest string
}

// GuestPending covers the guest from endpoint open until the host answers.
type GuestPending struct {
	Auth AuthState
}

type GuestAccepted struct {
	Host string
}

type GuestRejected struct{}

// GuestDisconnected follows an accepted session whose channel went away.
// Err is nil for an orderly close.
type GuestDisconnected struct {
	Err error
}

// Failed is terminal: the endpoint reported an error other than unavailable-id.
type Failed struct {
	Kind peer.ErrorKind
	Err  error
}

func (Unresolved) Status() Status { return StatusInitializing }

func (h Hosting) Status() Status {
	switch h.Phase {
	case HostVerifying:
		return StatusVerifyingGuest
	case HostConnected:
		return StatusConnected
	case HostRejected:
		return StatusAuthFailed
	}
	return StatusWaitingForGuest
}

func (GuestPending) Status() Status  { return StatusConnectingToHost }
func (GuestAccepted) Status() Status { return StatusConnected }
func (GuestRejected) Status() Status { return StatusAuthFailed }

func (d GuestDisconnected) Status() Status {
	if d.Err != nil {
		return StatusConnectionError
	}
	return StatusConnectionClosed
}

func (Failed) Status() Status { return StatusError }

func (Unresolved) Role() Role        { return RoleUnresolved }
func (Hosting) Role() Role           { return RoleHost }
func (GuestPending) Role() Role      { return RoleGuest }
func (GuestAccepted) Role() Role     { return RoleGuest }
func (GuestRejected) Role() Role     { return RoleGuest }
func (GuestDisconnected) Role() Role { return RoleGuest }
func (Failed) Role() Role            { return RoleUnresolved }

func (Unresolved) isState()        {}
func (Hosting) isState()           {}
func (GuestPending) isState()      {}
func (GuestAccepted) isState()     {}
func (GuestRejected) isState()     {}
func (GuestDisconnected) isState() {}
func (Failed) isState()            {}

// Display maps a state to its status line.
func Display(s State) string {
	switch st := s.(type) {
	case Hosting:
		switch st.Phase {
		case HostVerifying:
			return "Guest connecting (verifying password)..."
		case HostConnected:
			return "Connected to Host"
		case HostRejected:
			return "Authentication Failed"
		}
		return "Waiting for guest..."
	case GuestPending:
		return "Connecting to host..."
	case GuestAccepted:
		return "Connected to Host"
	case GuestRejected:
		return "Authentication Failed"
	case GuestDisconnected:
		if st.Err != nil {
			return "Connection Error"
		}
		return "Connection closed"
	case Failed:
		return "Error: " + string(st.Kind)
	}
	return "Initializing..."
}
