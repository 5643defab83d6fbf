package connector

import (
	"fmt"
	"sort"

	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/util"
)

// Registry maps platform names to connectors. It is filled once at startup and
// read-only afterwards.
type Registry struct {
	connectors map[string]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector)}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

// Register adds a connector. Panics on malformed or duplicate names, or when
// the declared auth type has no matching credential hook.
func (r *Registry) Register(c Connector) {
	name := c.Platform()
	if !util.IsValidPlatformName(name) {
		panic(fmt.Sprintf("invalid connector name: %q", name))
	}
	if _, exists := r.connectors[name]; exists {
		panic(fmt.Sprintf("connector already registered: %s", name))
	}

	_, isOAuth := c.(OAuthConnector)
	_, isAPIKey := c.(APIKeyConnector)
	switch c.AuthType() {
	case model.AuthTypeOAuth:
		if !isOAuth || isAPIKey {
			panic(fmt.Sprintf("connector %s: oauth auth type requires OAuthInfo only", name))
		}
	case model.AuthTypeAPIKey:
		if !isAPIKey || isOAuth {
			panic(fmt.Sprintf("connector %s: apiKey auth type requires BasicAuth only", name))
		}
	default:
		panic(fmt.Sprintf("connector %s: unknown auth type %q", name, c.AuthType()))
	}

	r.connectors[name] = c
}

func (r *Registry) Get(platform string) (Connector, bool) {
	c, ok := r.connectors[platform]
	return c, ok
}

type PlatformInfo struct {
	Name         string         `json:"name"`
	AuthType     model.AuthType `json:"authType"`
	ContactTypes []string       `json:"contactTypes,omitempty"`
}

// Platforms lists registered connectors sorted by name.
func (r *Registry) Platforms() []PlatformInfo {
	infos := make([]PlatformInfo, 0, len(r.connectors))
	for name, c := range r.connectors {
		info := PlatformInfo{Name: name, AuthType: c.AuthType()}
		if typer, ok := c.(ContactTyper); ok {
			info.ContactTypes = typer.ContactTypes()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
