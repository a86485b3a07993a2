// Package registry maps a registered device onto the adapter for its
// protocol family. Adding a vendor means adding a case here and an Adapter
// implementation; nothing downstream branches on protocol type.
package registry

import (
	"fmt"
	"time"

	"github.com/mubeen104/uips-attendance/internal/config"
	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/protocol/adms"
	"github.com/mubeen104/uips-attendance/internal/protocol/anviz"
	"github.com/mubeen104/uips-attendance/internal/protocol/bridge"
	"github.com/mubeen104/uips-attendance/internal/protocol/generictcp"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

type Registry struct {
	generictcp *generictcp.Adapter
	anviz      *anviz.Adapter
	adms       *adms.Adapter
	bridge     *bridge.Client
}

func New(cfg *config.Config, commands *adms.CommandQueue) *Registry {
	connectTimeout := time.Duration(cfg.Sync.ConnectTimeoutSeconds) * time.Second

	var tokens *bridge.TokenSource
	if cfg.Bridge.URL != "" {
		tokens = bridge.NewTokenSource(cfg.Secret, time.Duration(cfg.Bridge.TokenTTL)*time.Second)
	}

	return &Registry{
		generictcp: generictcp.New(connectTimeout),
		anviz:      anviz.New(connectTimeout),
		adms:       adms.New(commands),
		bridge:     bridge.New(cfg.Bridge.URL, tokens, 2*connectTimeout),
	}
}

// ForDevice returns the adapter for the device's protocol family.
func (r *Registry) ForDevice(device *storage.Device) (protocol.Adapter, error) {
	switch device.ProtocolType {
	case storage.ProtocolGenericTCP:
		return r.generictcp, nil
	case storage.ProtocolAnviz:
		return r.anviz, nil
	case storage.ProtocolADMS:
		return r.adms, nil
	case storage.ProtocolSerial:
		// Bridge-only family. The client itself reports ErrBridgeRequired
		// when no relay is configured.
		return r.bridge, nil
	default:
		return nil, fmt.Errorf("unknown protocol type %q", device.ProtocolType)
	}
}
