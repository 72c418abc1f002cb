package services

import (
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
)

// WriteYAML exports the inventory in the engine's YAML inventory layout
// (all.hosts with vars, every other group as a child of all) for use as
// a static file.
func (inv *Inventory) WriteYAML(w io.Writer) error {
	hosts := yaml.MapSlice{}
	for _, name := range inv.All.Hosts {
		hv := inv.HostVars[name]
		vars := yaml.MapSlice{}
		if hv.AnsibleHost != "" {
			vars = append(vars, yaml.MapItem{Key: "ansible_host", Value: hv.AnsibleHost})
		}
		vars = append(vars, yaml.MapItem{Key: "ansible_user", Value: hv.AnsibleUser})
		hosts = append(hosts, yaml.MapItem{Key: name, Value: vars})
	}

	children := yaml.MapSlice{{Key: groupUngrouped, Value: groupMembers(inv.Ungrouped.Hosts)}}
	for _, g := range inv.Groups {
		children = append(children, yaml.MapItem{Key: g.Name, Value: groupMembers(g.Hosts)})
	}

	doc := yaml.MapSlice{{Key: groupAll, Value: yaml.MapSlice{
		{Key: "hosts", Value: hosts},
		{Key: "children", Value: children},
	}}}

	b, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode inventory: %w", err)
	}
	_, err = w.Write(b)
	return err
}

func groupMembers(names []string) yaml.MapSlice {
	members := yaml.MapSlice{}
	for _, n := range names {
		members = append(members, yaml.MapItem{Key: n, Value: map[string]any{}})
	}
	return yaml.MapSlice{{Key: "hosts", Value: members}}
}
