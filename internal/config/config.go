package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default configuration values (production)
const (
	DefaultPeerHost      = "0.peerjs.com"
	DefaultPeerPort      = 443
	DefaultPeerPath      = "/"
	DefaultPeerKey       = "peerjs"
	DefaultPeerDebug     = 2
	DefaultSerialization = "msgpack"

	DefaultSTUN = "stun:stun.l.google.com:19302"

	DefaultGracePeriod    = 1 * time.Second
	DefaultAuthTimeout    = 30 * time.Second
	DefaultFailCloseDelay = 500 * time.Millisecond
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultHeartbeat      = 5 * time.Second
)

// PeerOptions describes how to reach the rendezvous service.
type PeerOptions struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Path          string `json:"path"`
	Secure        bool   `json:"secure"`
	Key           string `json:"key"`
	Debug         int    `json:"debug"`
	Serialization string `json:"serialization"`
}

// Config holds application configuration
type Config struct {
	Peer PeerOptions

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// WebURL is the base of shareable room links, empty when links are not served.
	WebURL string

	GracePeriod    time.Duration
	AuthTimeout    time.Duration
	FailCloseDelay time.Duration
	RetryDelay     time.Duration
	Heartbeat      time.Duration
}

// Options for loading config with CLI flag overrides.
// Zero values mean "not set on the command line".
type Options struct {
	PeerHost   string
	PeerPort   int
	PeerPath   string
	PeerKey    string
	PeerSecure *bool

	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	WebURL      string
	AuthTimeout *time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
//
// The peer override hook is applied on top of the result.
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		Peer: PeerOptions{
			Host:          pick(opts.PeerHost, os.Getenv("P2PSHARE_PEER_HOST"), DefaultPeerHost),
			Path:          pick(opts.PeerPath, os.Getenv("P2PSHARE_PEER_PATH"), DefaultPeerPath),
			Key:           pick(opts.PeerKey, os.Getenv("P2PSHARE_PEER_KEY"), DefaultPeerKey),
			Debug:         DefaultPeerDebug,
			Serialization: pick("", os.Getenv("P2PSHARE_SERIALIZATION"), DefaultSerialization),
			Secure:        true,
		},
		STUNServer:     pick(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:     pick(opts.TURNServer, os.Getenv("TURN_SERVER"), ""),
		TURNUser:       pick(opts.TURNUser, os.Getenv("TURN_USERNAME"), ""),
		TURNPass:       pick(opts.TURNPass, os.Getenv("TURN_PASSWORD"), ""),
		ForceRelay:     opts.ForceRelay,
		WebURL:         strings.TrimSuffix(pick(opts.WebURL, os.Getenv("P2PSHARE_WEB_URL"), ""), "/"),
		GracePeriod:    DefaultGracePeriod,
		AuthTimeout:    DefaultAuthTimeout,
		FailCloseDelay: DefaultFailCloseDelay,
		RetryDelay:     DefaultRetryDelay,
		Heartbeat:      DefaultHeartbeat,
	}

	// Port: CLI flag > env > default
	cfg.Peer.Port = opts.PeerPort
	if cfg.Peer.Port == 0 {
		if v := os.Getenv("P2PSHARE_PEER_PORT"); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid P2PSHARE_PEER_PORT %q: %w", v, err)
			}
			cfg.Peer.Port = port
		}
	}
	if cfg.Peer.Port == 0 {
		cfg.Peer.Port = DefaultPeerPort
	}

	// Secure: CLI flag > env > default
	if opts.PeerSecure != nil {
		cfg.Peer.Secure = *opts.PeerSecure
	} else if v := os.Getenv("P2PSHARE_PEER_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid P2PSHARE_PEER_SECURE %q: %w", v, err)
		}
		cfg.Peer.Secure = secure
	}

	if !cfg.ForceRelay {
		if v := os.Getenv("FORCE_RELAY"); v != "" {
			cfg.ForceRelay, _ = strconv.ParseBool(v)
		}
	}

	// Auth timeout: CLI flag > env > default; zero disables the deadline
	if opts.AuthTimeout != nil {
		cfg.AuthTimeout = *opts.AuthTimeout
	} else if v := os.Getenv("P2PSHARE_AUTH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid P2PSHARE_AUTH_TIMEOUT %q: %w", v, err)
		}
		cfg.AuthTimeout = d
	}

	if err := applyPeerOverride(&cfg.Peer); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that can never produce a working session.
func (c *Config) Validate() error {
	if c.Peer.Host == "" {
		return fmt.Errorf("peer host is empty")
	}
	if c.Peer.Port <= 0 || c.Peer.Port > 65535 {
		return fmt.Errorf("peer port %d out of range", c.Peer.Port)
	}
	switch c.Peer.Serialization {
	case "msgpack", "json":
	default:
		return fmt.Errorf("unknown serialization %q", c.Peer.Serialization)
	}
	if c.AuthTimeout < 0 {
		return fmt.Errorf("auth timeout must not be negative")
	}
	return nil
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetRoomLink returns the shareable link for a room ID, or "" when no web
// front end is configured.
func (c *Config) GetRoomLink(roomID string) string {
	if c.WebURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/#/room/%s", c.WebURL, url.PathEscape(roomID))
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured.
// A server given without a port is expanded to the usual udp, tcp and tls variants.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Count(c.TURNServer, ":") > 1 {
		return []string{c.TURNServer}
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// HTTPBase returns the http(s) base URL of the rendezvous service, ending in '/'.
func (p PeerOptions) HTTPBase() string {
	scheme := "http"
	if p.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, p.Host, p.Port, p.normalizedPath())
}

// SocketURL returns the websocket URL for the given endpoint id and token.
func (p PeerOptions) SocketURL(id, token string) string {
	scheme := "ws"
	if p.Secure {
		scheme = "wss"
	}
	q := url.Values{}
	q.Set("key", p.Key)
	q.Set("id", id)
	q.Set("token", token)
	return fmt.Sprintf("%s://%s:%d%speerjs?%s", scheme, p.Host, p.Port, p.normalizedPath(), q.Encode())
}

func (p PeerOptions) normalizedPath() string {
	path := p.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}
