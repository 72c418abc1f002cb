package common

import (
	"fmt"
	"net/url"
	"strings"
)

// Environment keys read by LoadConfig.
const (
	EnvAPIURL          = "ORCHESTRATOR_API_URL"
	EnvAPIToken        = "ORCHESTRATOR_API_TOKEN"
	EnvPlaybookDir     = "ORCHESTRATOR_PLAYBOOK_DIR"
	EnvAnsiblePlaybook = "ORCHESTRATOR_ANSIBLE_PLAYBOOK"
	EnvInventorySource = "ORCHESTRATOR_INVENTORY_SOURCE"
	EnvKeyDir          = "ORCHESTRATOR_KEY_DIR"
	EnvLogLevel        = "ORCHESTRATOR_LOG_LEVEL"
	EnvLogFormat       = "ORCHESTRATOR_LOG_FORMAT"
	EnvJournalDSN      = "ORCHESTRATOR_JOURNAL_DSN"
)

// Config is built once at process start and handed to every component.
// Nothing below main reads the process environment.
type Config struct {
	APIURL   string
	APIToken string

	PlaybookDir     string
	AnsiblePlaybook string
	// InventorySource is the executable the engine calls with --list.
	InventorySource string
	// KeyDir holds ephemeral key files; "" means the OS temp dir.
	KeyDir string

	LogLevel  string
	LogFormat string

	// JournalDSN enables the Postgres run journal when set.
	JournalDSN string

	// Environ is the base environment of the engine subprocess.
	Environ []string
}

// LoadConfig reads every ORCHESTRATOR_* key through getenv. environ is
// kept as the subprocess base environment.
func LoadConfig(getenv func(string) string, environ []string) *Config {
	return &Config{
		APIURL:          strings.TrimRight(envFrom(getenv, EnvAPIURL, ""), "/"),
		APIToken:        envFrom(getenv, EnvAPIToken, ""),
		PlaybookDir:     envFrom(getenv, EnvPlaybookDir, "ansible/playbooks"),
		AnsiblePlaybook: envFrom(getenv, EnvAnsiblePlaybook, "ansible-playbook"),
		InventorySource: envFrom(getenv, EnvInventorySource, ""),
		KeyDir:          envFrom(getenv, EnvKeyDir, ""),
		LogLevel:        strings.ToLower(envFrom(getenv, EnvLogLevel, "info")),
		LogFormat:       strings.ToLower(envFrom(getenv, EnvLogFormat, "text")),
		JournalDSN:      envFrom(getenv, EnvJournalDSN, ""),
		Environ:         append([]string(nil), environ...),
	}
}

// RequireAPI fails with ErrConfigurationMissing unless both the API base
// URL and the bearer token are set.
func (c *Config) RequireAPI() error {
	var missing []string
	if c == nil || c.APIURL == "" {
		missing = append(missing, EnvAPIURL)
	}
	if c == nil || c.APIToken == "" {
		missing = append(missing, EnvAPIToken)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s not set", ErrConfigurationMissing, strings.Join(missing, " and "))
	}
	return nil
}

// ServersURL is the host collection endpoint.
func (c *Config) ServersURL() string {
	return c.APIURL + "/api/servers/"
}

// ServerURL is the endpoint of a single host record.
func (c *Config) ServerURL(id string) string {
	return c.APIURL + "/api/servers/" + url.PathEscape(id)
}

func envFrom(getenv func(string) string, key, defaultValue string) string {
	if value := strings.TrimSpace(getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
