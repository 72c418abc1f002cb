// services/inventory.go - dynamic inventory built from the fleet API
package services

import (
	"context"
	"encoding/json"

	"orchctl/common"
)

const (
	groupAll       = "all"
	groupUngrouped = "ungrouped"
	projectPrefix  = "project_"
)

// InventoryGroup is one group of the engine's JSON inventory contract.
type InventoryGroup struct {
	Hosts    []string `json:"hosts"`
	Children []string `json:"children,omitempty"`
}

// NamedGroup is a dynamic (per-project) group.
type NamedGroup struct {
	Name string
	InventoryGroup
}

// HostVars are the connection variables of one inventory host.
type HostVars struct {
	AnsibleHost string `json:"ansible_host,omitempty"`
	AnsibleUser string `json:"ansible_user"`
}

// Inventory is the grouped projection of every addressable host record.
// HostVars keys are exactly the names in All.Hosts.
type Inventory struct {
	All       InventoryGroup
	Ungrouped InventoryGroup
	// Groups holds project_<id> groups in first-encounter order.
	Groups   []NamedGroup
	HostVars map[string]HostVars
}

// EmptyInventory is the canonical document served when the API cannot be
// reached.
func EmptyInventory() *Inventory {
	return &Inventory{
		All:       InventoryGroup{Hosts: []string{}, Children: []string{groupUngrouped}},
		Ungrouped: InventoryGroup{Hosts: []string{}},
		HostVars:  map[string]HostVars{},
	}
}

// Group looks up any group by its inventory name.
func (inv *Inventory) Group(name string) (InventoryGroup, bool) {
	switch name {
	case groupAll:
		return inv.All, true
	case groupUngrouped:
		return inv.Ungrouped, true
	}
	for _, g := range inv.Groups {
		if g.Name == name {
			return g.InventoryGroup, true
		}
	}
	return InventoryGroup{}, false
}

// MarshalJSON renders the document the engine reads from --list.
func (inv *Inventory) MarshalJSON() ([]byte, error) {
	doc := map[string]any{
		groupAll:       inv.All,
		groupUngrouped: inv.Ungrouped,
		"_meta":        map[string]any{"hostvars": inv.HostVars},
	}
	for _, g := range inv.Groups {
		doc[g.Name] = g.InventoryGroup
	}
	return json.Marshal(doc)
}

// HostDocument is the --host answer: the host's vars, or {} when unknown.
func (inv *Inventory) HostDocument(name string) map[string]string {
	hv, ok := inv.HostVars[name]
	if !ok {
		return map[string]string{}
	}
	out := map[string]string{"ansible_user": hv.AnsibleUser}
	if hv.AnsibleHost != "" {
		out["ansible_host"] = hv.AnsibleHost
	}
	return out
}

// InventoryProvider serves the engine's inventory callback.
type InventoryProvider struct {
	hosts HostLister
	log   *common.Logger
}

func NewInventoryProvider(hosts HostLister, log *common.Logger) *InventoryProvider {
	return &InventoryProvider{hosts: hosts, log: log}
}

// BuildInventory never fails. The engine polls the inventory at start-up
// of every run, so an unreachable or misconfigured API yields the empty
// document and a log line instead of an error.
func (p *InventoryProvider) BuildInventory(ctx context.Context) *Inventory {
	hosts, err := p.hosts.ListHosts(ctx)
	if err != nil {
		p.log.Errorf("inventory: serving empty inventory: %v", err)
		return EmptyInventory()
	}
	return ProjectInventory(hosts, p.log)
}

// ProjectInventory groups host records into an Inventory.
func ProjectInventory(hosts []common.Host, log *common.Logger) *Inventory {
	inv := EmptyInventory()
	groupIndex := map[string]int{}

	for _, h := range hosts {
		if !h.Addressable() {
			log.Debugf("inventory: skipping host id=%s without hostname or ip_address", h.ID)
			continue
		}
		name := h.Name()
		if _, dup := inv.HostVars[name]; dup {
			log.Warnf("inventory: duplicate host %q ignored (id=%s)", name, h.ID)
			continue
		}

		inv.All.Hosts = append(inv.All.Hosts, name)
		inv.HostVars[name] = HostVars{AnsibleHost: h.IPAddress, AnsibleUser: h.LoginUser()}

		if !h.Provisioned {
			inv.Ungrouped.Hosts = append(inv.Ungrouped.Hosts, name)
		}
		if h.ProjectID != "" {
			group := projectPrefix + string(h.ProjectID)
			i, ok := groupIndex[group]
			if !ok {
				inv.Groups = append(inv.Groups, NamedGroup{Name: group, InventoryGroup: InventoryGroup{Hosts: []string{}}})
				i = len(inv.Groups) - 1
				groupIndex[group] = i
			}
			inv.Groups[i].Hosts = append(inv.Groups[i].Hosts, name)
		}
	}
	log.Debugf("inventory: %d hosts, %d ungrouped, %d project groups", len(inv.All.Hosts), len(inv.Ungrouped.Hosts), len(inv.Groups))
	return inv
}
