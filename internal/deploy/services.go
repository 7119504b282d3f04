// Package deploy turns the fixed WeSense service set into docker run
// invocations, or creates the containers directly through the Docker API.
package deploy

import (
	"path/filepath"
	"strconv"
)

// Default image tags for the stack. A deploy manifest can override them.
const (
	DefaultClickHouseImage = "clickhouse/clickhouse-server:24.8"
	DefaultEMQXImage       = "emqx/emqx:5.8"
	DefaultBridgeImage     = "wesense/wesense:latest"
	DefaultGrafanaImage    = "grafana/grafana-oss:11.4.0"
)

// WrapperBinary is where the wesense binary is expected on the host and
// mounted inside the broker container, so the entrypoint wrapper can run
// before the broker does.
const WrapperBinary = "/usr/local/bin/wesense"

// Service describes one container of the stack.
type Service struct {
	Name       string
	Image      string
	Entrypoint string
	Command    []string
	Ports      map[string]string // host port -> container port
	Volumes    map[string]string // host path -> container path
	Env        map[string]string
	Restart    string
}

// ContainerName returns the container's --name value.
func (s Service) ContainerName() string {
	return "wesense-" + s.Name
}

// Config is the environment the catalog is rendered from.
type Config struct {
	// DataDir is the host directory that backs every service's state.
	DataDir string

	// Broker credentials, passed through to the emqx wrapper and the
	// bridge. May be empty: the broker then allows anonymous access.
	MQTTUser     string
	MQTTPassword string

	// Target identity for the broker's privilege drop.
	PUID int
	PGID int

	// ClickHouseDB is the database the bridge writes into.
	ClickHouseDB string
}

// Catalog returns the full service set for a config. Order is start
// order: storage first, broker next, consumers last.
func Catalog(cfg Config) []Service {
	if cfg.ClickHouseDB == "" {
		cfg.ClickHouseDB = "wesense"
	}

	clickhouse := Service{
		Name:  "clickhouse",
		Image: DefaultClickHouseImage,
		Ports: map[string]string{"8123": "8123", "9000": "9000"},
		Volumes: map[string]string{
			filepath.Join(cfg.DataDir, "clickhouse"): "/var/lib/clickhouse",
		},
		Env: map[string]string{
			"CLICKHOUSE_DB": cfg.ClickHouseDB,
		},
		Restart: "unless-stopped",
	}

	emqx := Service{
		Name:       "emqx",
		Image:      DefaultEMQXImage,
		Entrypoint: WrapperBinary,
		Command:    []string{"entrypoint"},
		Ports:      map[string]string{"1883": "1883", "8083": "8083", "18083": "18083"},
		Volumes: map[string]string{
			filepath.Join(cfg.DataDir, "emqx"): "/opt/emqx/data",
			WrapperBinary:                      WrapperBinary + ":ro",
		},
		Env: map[string]string{
			"PUID": strconv.Itoa(cfg.PUID),
			"PGID": strconv.Itoa(cfg.PGID),
		},
		Restart: "unless-stopped",
	}
	if cfg.MQTTUser != "" && cfg.MQTTPassword != "" {
		emqx.Env["MQTT_USER"] = cfg.MQTTUser
		emqx.Env["MQTT_PASSWORD"] = cfg.MQTTPassword
	}

	bridge := Service{
		Name:    "bridge",
		Image:   DefaultBridgeImage,
		Command: []string{"bridge"},
		Volumes: map[string]string{
			filepath.Join(cfg.DataDir, "bridge"): "/data",
		},
		Env: map[string]string{
			"WESENSE_MQTT_BROKER":         "tcp://wesense-emqx:1883",
			"WESENSE_CLICKHOUSE_HOST":     "wesense-clickhouse",
			"WESENSE_CLICKHOUSE_DATABASE": cfg.ClickHouseDB,
			"TRUST_FILE":                  "/data/trust_list.json",
		},
		Restart: "unless-stopped",
	}
	if cfg.MQTTUser != "" && cfg.MQTTPassword != "" {
		bridge.Env["MQTT_USER"] = cfg.MQTTUser
		bridge.Env["MQTT_PASSWORD"] = cfg.MQTTPassword
	}

	grafana := Service{
		Name:  "grafana",
		Image: DefaultGrafanaImage,
		Ports: map[string]string{"3000": "3000"},
		Volumes: map[string]string{
			filepath.Join(cfg.DataDir, "grafana"): "/var/lib/grafana",
		},
		Env:     map[string]string{},
		Restart: "unless-stopped",
	}

	return []Service{clickhouse, emqx, bridge, grafana}
}

// Select filters the catalog by name. An empty selection returns
// everything.
func Select(services []Service, names []string) []Service {
	if len(names) == 0 {
		return services
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Service
	for _, s := range services {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out
}
