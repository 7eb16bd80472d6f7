// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

// Configuration for structured logging.
type LoggingConfig struct {
	// The log level to use (debug, info, warn, error).
	LevelStr string `json:"level"`
	// The log format to use (json, text).
	Format string `json:"format"`
}

// Configuration for the monitoring module.
type MonitoringConfig struct {
	// The labels to add to all metrics.
	Labels map[string]string `json:"labels"`
	// The port to expose the metrics on.
	Port int `json:"port"`
}

// Configuration for the api port.
type APIConfig struct {
	// The port to expose the API on.
	Port int `json:"port"`
}

// Configuration for the keystone authentication.
type KeystoneConfig struct {
	// The URL of the keystone service.
	URL string `json:"url"`
	// Availability of the keystone service, such as "public", "internal", or "admin".
	Availability string `json:"availability"`
	// The OpenStack username (OS_USERNAME in openstack cli).
	OSUsername string `json:"username"`
	// The OpenStack password (OS_PASSWORD in openstack cli).
	OSPassword string `json:"password"`
	// The OpenStack project name (OS_PROJECT_NAME in openstack cli).
	OSProjectName string `json:"projectName"`
	// The OpenStack user domain name (OS_USER_DOMAIN_NAME in openstack cli).
	OSUserDomainName string `json:"userDomainName"`
	// The OpenStack project domain name (OS_PROJECT_DOMAIN_NAME in openstack cli).
	OSProjectDomainName string `json:"projectDomainName"`
}

// Configuration of the placement report client.
type PlacementConfig struct {
	// Seconds after which the aggregates and traits of a cached resource
	// provider are considered stale. Defaults to 300.
	AssociationRefreshSeconds int `json:"associationRefreshSeconds"`
	// Seconds to wait between retries of a conflicting write. Defaults to 1.
	RetryDelaySeconds *int `json:"retryDelaySeconds,omitempty"`
}

// Host resources that are kept back from the inventory reported to placement.
type ReservedConfig struct {
	// Number of host cpus reserved for the hypervisor itself.
	HostCPUs int `json:"hostCPUs"`
	// Amount of host memory in MB reserved for the hypervisor. Defaults to 512.
	HostMemoryMB *int `json:"hostMemoryMB,omitempty"`
	// Amount of host disk in MB reserved for the hypervisor.
	HostDiskMB int `json:"hostDiskMB"`
}

// Allocation ratios applied to compute nodes that don't carry their own.
type AllocationRatioConfig struct {
	CPU  float64 `json:"cpu"`
	RAM  float64 `json:"ram"`
	Disk float64 `json:"disk"`
}

// A compute node whose capacity is given statically in the config.
type ComputeNodeConfig struct {
	// UUID of the compute node, used as resource provider uuid.
	UUID string `json:"uuid"`
	// Hostname of the hypervisor, used as resource provider name.
	HypervisorHostname string `json:"hypervisorHostname"`
	VCPUs              int    `json:"vcpus"`
	MemoryMB           int    `json:"memoryMB"`
	LocalGB            int    `json:"localGB"`
	// Traits to set on the resource provider of this compute node.
	Traits []string `json:"traits,omitempty"`
}

// Kind of capacity source to use for the reporter.
type CapacitySource string

const (
	// Compute nodes from the static configuration.
	CapacitySourceStatic CapacitySource = "static"
	// Compute nodes from the nova hypervisor api.
	CapacitySourceNova CapacitySource = "nova"
)

// Configuration of the periodic capacity reporter.
type ReporterConfig struct {
	// Seconds between two reporting cycles. Defaults to 60.
	IntervalSeconds int `json:"intervalSeconds"`
	// Where to get the compute node capacity from.
	Source CapacitySource `json:"source"`
	// Allocation ratios used when a compute node doesn't define them.
	AllocationRatios AllocationRatioConfig `json:"allocationRatios"`
	// Compute nodes reported when the source is static.
	ComputeNodes []ComputeNodeConfig `json:"computeNodes,omitempty"`
}

// Configuration for the placement reporter service.
type Config struct {
	LoggingConfig    `json:"logging"`
	MonitoringConfig `json:"monitoring"`
	APIConfig        `json:"api"`
	KeystoneConfig   `json:"keystone"`
	PlacementConfig  `json:"placement"`
	ReservedConfig   `json:"reserved"`
	ReporterConfig   `json:"reporter"`
}

// Association refresh interval with the default applied.
func (c PlacementConfig) AssociationRefresh() time.Duration {
	if c.AssociationRefreshSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.AssociationRefreshSeconds) * time.Second
}

// Retry delay with the default applied. An explicit zero disables the delay.
func (c PlacementConfig) RetryDelay() time.Duration {
	if c.RetryDelaySeconds == nil {
		return time.Second
	}
	return time.Duration(*c.RetryDelaySeconds) * time.Second
}

// Reserved host memory with the default applied.
func (c ReservedConfig) MemoryMB() int {
	if c.HostMemoryMB == nil {
		return 512
	}
	return *c.HostMemoryMB
}

// Reporting interval with the default applied.
func (c ReporterConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Allocation ratios where unset values are replaced by the defaults
// 16.0 (cpu), 1.5 (ram) and 1.0 (disk).
func (c AllocationRatioConfig) WithDefaults() AllocationRatioConfig {
	if c.CPU <= 0 {
		c.CPU = 16.0
	}
	if c.RAM <= 0 {
		c.RAM = 1.5
	}
	if c.Disk <= 0 {
		c.Disk = 1.0
	}
	return c
}

// Create a new configuration from the default config json file.
//
// This will read two files:
//   - /etc/config/conf.json
//   - /etc/secrets/secrets.json
//
// The values read from secrets.json will override the values in conf.json
func GetConfigOrDie[C any]() C {
	// Note: We need to read the config as a raw map first, to avoid golang
	// unmarshalling default values for the fields.

	// Read the base config from the configmap (not including secrets).
	cmConf, err := readRawConfig("/etc/config/conf.json")
	if err != nil {
		panic(err)
	}
	// Read the secrets config from the kubernetes secret.
	secretConf, err := readRawConfig("/etc/secrets/secrets.json")
	if err != nil {
		panic(err)
	}
	return newConfigFromMaps[C](cmConf, secretConf)
}

func newConfigFromMaps[C any](base, override map[string]any) C {
	mergedConf := mergeMaps(base, override)
	mergedBytes, err := json.Marshal(mergedConf)
	if err != nil {
		panic(err)
	}
	var c C
	if err := json.Unmarshal(mergedBytes, &c); err != nil {
		panic(err)
	}
	return c
}

// Read the json as a map from the given file path.
func readRawConfig(filepath string) (map[string]any, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	bytes, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	var conf map[string]any
	if err := json.Unmarshal(bytes, &conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// mergeMaps recursively overrides dst with src (in-place)
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		if v == nil {
			continue
		}
		if dstVal, ok := dst[k]; ok {
			dstMap, dstIsMap := dstVal.(map[string]any)
			srcMap, srcIsMap := v.(map[string]any)
			if dstIsMap && srcIsMap {
				dst[k] = mergeMaps(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}
