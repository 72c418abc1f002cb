package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchctl/common"
	"orchctl/fleettest"
)

func fleetHosts() []common.Host {
	return []common.Host{
		{ID: "1", Hostname: "web-1", IPAddress: "10.0.0.5", ProjectID: "7", Provisioned: false},
		{ID: "2", Hostname: "web-2", IPAddress: "10.0.0.6", ProjectID: "7", Provisioned: true, User: "deploy"},
		{ID: "3", IPAddress: "10.0.0.9", Provisioned: true},
		{ID: "4", Provisioned: false},
		{ID: "5", Hostname: "db-1", ProjectID: "8"},
	}
}

func TestProjectInventory(t *testing.T) {
	inv := ProjectInventory(fleetHosts(), quietLogger())

	assert.Equal(t, []string{"web-1", "web-2", "10.0.0.9", "db-1"}, inv.All.Hosts)
	assert.Equal(t, []string{"ungrouped"}, inv.All.Children)
	assert.Equal(t, []string{"web-1", "db-1"}, inv.Ungrouped.Hosts)

	g, ok := inv.Group("project_7")
	require.True(t, ok)
	assert.Equal(t, []string{"web-1", "web-2"}, g.Hosts)
	g, ok = inv.Group("project_8")
	require.True(t, ok)
	assert.Equal(t, []string{"db-1"}, g.Hosts)
	_, ok = inv.Group("project_")
	assert.False(t, ok)

	assert.Equal(t, HostVars{AnsibleHost: "10.0.0.5", AnsibleUser: "root"}, inv.HostVars["web-1"])
	assert.Equal(t, HostVars{AnsibleHost: "10.0.0.6", AnsibleUser: "deploy"}, inv.HostVars["web-2"])
	assert.Equal(t, HostVars{AnsibleUser: "root"}, inv.HostVars["db-1"])
}

func TestProjectInventory_HostVarsMatchAllHosts(t *testing.T) {
	hosts := append(fleetHosts(), common.Host{ID: "6", Hostname: "web-1", IPAddress: "10.0.0.50", ProjectID: "7"})
	inv := ProjectInventory(hosts, quietLogger())

	keys := make([]string, 0, len(inv.HostVars))
	for k := range inv.HostVars {
		keys = append(keys, k)
	}
	all := append([]string(nil), inv.All.Hosts...)
	sort.Strings(keys)
	sort.Strings(all)
	assert.Equal(t, all, keys)

	// first record wins
	assert.Equal(t, "10.0.0.5", inv.HostVars["web-1"].AnsibleHost)
	g, _ := inv.Group("project_7")
	assert.Equal(t, []string{"web-1", "web-2"}, g.Hosts)
}

func TestInventory_MarshalJSON(t *testing.T) {
	inv := ProjectInventory(fleetHosts()[:2], quietLogger())

	b, err := json.Marshal(inv)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.ElementsMatch(t, []string{"all", "ungrouped", "_meta", "project_7"}, mapKeys(doc))
	assert.JSONEq(t, `{
		"all": {"hosts": ["web-1", "web-2"], "children": ["ungrouped"]},
		"ungrouped": {"hosts": ["web-1"]},
		"project_7": {"hosts": ["web-1", "web-2"]},
		"_meta": {"hostvars": {
			"web-1": {"ansible_host": "10.0.0.5", "ansible_user": "root"},
			"web-2": {"ansible_host": "10.0.0.6", "ansible_user": "deploy"}
		}}
	}`, string(b))
}

func TestEmptyInventory_JSON(t *testing.T) {
	b, err := json.Marshal(EmptyInventory())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"all": {"hosts": [], "children": ["ungrouped"]},
		"ungrouped": {"hosts": []},
		"_meta": {"hostvars": {}}
	}`, string(b))
}

func TestInventory_HostDocument(t *testing.T) {
	inv := ProjectInventory(fleetHosts(), quietLogger())

	assert.Equal(t, map[string]string{"ansible_host": "10.0.0.6", "ansible_user": "deploy"}, inv.HostDocument("web-2"))
	assert.Equal(t, map[string]string{"ansible_user": "root"}, inv.HostDocument("db-1"))
	assert.Equal(t, map[string]string{}, inv.HostDocument("nope"))
}

func TestInventoryProvider_BuildInventory(t *testing.T) {
	srv := fleettest.New(t, testToken, fleetHosts()...)
	p := NewInventoryProvider(NewFleetClient(srv.Config(), quietLogger()), quietLogger())

	inv := p.BuildInventory(context.Background())

	assert.Len(t, inv.All.Hosts, 4)
	assert.Equal(t, 1, srv.ListRequests())
}

func TestInventoryProvider_DegradesToEmpty(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *common.Config
	}{
		{"no configuration", func(t *testing.T) *common.Config { return &common.Config{} }},
		{"server error", func(t *testing.T) *common.Config {
			srv := fleettest.New(t, testToken, fleetHosts()...)
			srv.FailList(http.StatusInternalServerError)
			return srv.Config()
		}},
		{"malformed body", func(t *testing.T) *common.Config {
			srv := fleettest.New(t, testToken)
			srv.ServeRawList(`not json`)
			return srv.Config()
		}},
		{"unreachable", func(t *testing.T) *common.Config {
			srv := fleettest.New(t, testToken)
			cfg := srv.Config()
			srv.Close()
			return cfg
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			log := common.NewLogger(&common.Config{LogLevel: "error"}, &logs)
			p := NewInventoryProvider(NewFleetClient(tt.setup(t), log), log)

			inv := p.BuildInventory(context.Background())

			assert.Equal(t, EmptyInventory(), inv)
			assert.Contains(t, logs.String(), "serving empty inventory")
		})
	}
}

func TestInventory_WriteYAML(t *testing.T) {
	inv := ProjectInventory(fleetHosts(), quietLogger())

	var buf bytes.Buffer
	require.NoError(t, inv.WriteYAML(&buf))

	var doc struct {
		All struct {
			Hosts    map[string]map[string]string `yaml:"hosts"`
			Children map[string]struct {
				Hosts map[string]map[string]any `yaml:"hosts"`
			} `yaml:"children"`
		} `yaml:"all"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, map[string]string{"ansible_host": "10.0.0.6", "ansible_user": "deploy"}, doc.All.Hosts["web-2"])
	assert.Equal(t, map[string]string{"ansible_user": "root"}, doc.All.Hosts["db-1"])
	assert.Len(t, doc.All.Hosts, 4)
	assert.Contains(t, doc.All.Children, "ungrouped")
	assert.Len(t, doc.All.Children["project_7"].Hosts, 2)
	assert.Contains(t, doc.All.Children["project_8"].Hosts, "db-1")
	assert.Contains(t, doc.All.Children["ungrouped"].Hosts, "web-1")
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
