package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// PeerOverrideEnv names the environment variable holding a JSON peer
// options override, either inline or as "@/path/to/file.json".
const PeerOverrideEnv = "P2PSHARE_PEER_CONFIG"

type peerOverride struct {
	Host          *string `json:"host"`
	Port          *int    `json:"port"`
	Path          *string `json:"path"`
	Secure        *bool   `json:"secure"`
	Key           *string `json:"key"`
	Debug         *int    `json:"debug"`
	Serialization *string `json:"serialization"`
}

var (
	overrideMu sync.Mutex
	overrideFn func(*PeerOptions)
)

// SetPeerOverride installs a process-wide hook run after every Load.
// It returns a function restoring the previous hook.
func SetPeerOverride(fn func(*PeerOptions)) (restore func()) {
	overrideMu.Lock()
	prev := overrideFn
	overrideFn = fn
	overrideMu.Unlock()

	return func() {
		overrideMu.Lock()
		overrideFn = prev
		overrideMu.Unlock()
	}
}

func applyPeerOverride(p *PeerOptions) error {
	if raw := strings.TrimSpace(os.Getenv(PeerOverrideEnv)); raw != "" {
		data := []byte(raw)
		if strings.HasPrefix(raw, "@") {
			b, err := os.ReadFile(raw[1:])
			if err != nil {
				return fmt.Errorf("read %s: %w", PeerOverrideEnv, err)
			}
			data = b
		}
		var o peerOverride
		if err := json.Unmarshal(data, &o); err != nil {
			return fmt.Errorf("parse %s: %w", PeerOverrideEnv, err)
		}
		o.apply(p)
	}

	overrideMu.Lock()
	fn := overrideFn
	overrideMu.Unlock()
	if fn != nil {
		fn(p)
	}
	return nil
}

func (o peerOverride) apply(p *PeerOptions) {
	if o.Host != nil {
		p.Host = *o.Host
	}
	if o.Port != nil {
		p.Port = *o.Port
	}
	if o.Path != nil {
		p.Path = *o.Path
	}
	if o.Secure != nil {
		p.Secure = *o.Secure
	}
	if o.Key != nil {
		p.Key = *o.Key
	}
	if o.Debug != nil {
		p.Debug = *o.Debug
	}
	if o.Serialization != nil {
		p.Serialization = *o.Serialization
	}
}
