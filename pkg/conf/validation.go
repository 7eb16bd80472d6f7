// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Check if the configuration is valid.
func (c *Config) Validate() error {
	if c.KeystoneConfig.URL == "" {
		return errors.New("keystone url is required")
	}
	if !strings.Contains(c.KeystoneConfig.URL, "/v3") {
		return fmt.Errorf(
			"expected v3 Keystone URL, but got %s",
			c.KeystoneConfig.URL,
		)
	}
	// OpenStack urls should end without a slash.
	if strings.HasSuffix(c.KeystoneConfig.URL, "/") {
		return fmt.Errorf("openstack url %s should not end with a slash", c.KeystoneConfig.URL)
	}
	if c.PlacementConfig.RetryDelaySeconds != nil && *c.PlacementConfig.RetryDelaySeconds < 0 {
		return errors.New("placement retry delay must not be negative")
	}
	if c.ReservedConfig.HostCPUs < 0 || c.ReservedConfig.HostDiskMB < 0 || c.ReservedConfig.MemoryMB() < 0 {
		return errors.New("reserved host resources must not be negative")
	}
	switch c.ReporterConfig.Source {
	case CapacitySourceNova:
		if len(c.ReporterConfig.ComputeNodes) > 0 {
			return errors.New("static compute nodes are only used with the static capacity source")
		}
	case CapacitySourceStatic, "":
		seen := make(map[string]struct{}, len(c.ReporterConfig.ComputeNodes))
		for _, node := range c.ReporterConfig.ComputeNodes {
			if _, err := uuid.Parse(node.UUID); err != nil {
				return fmt.Errorf("compute node %q has an invalid uuid: %w", node.HypervisorHostname, err)
			}
			if node.HypervisorHostname == "" {
				return fmt.Errorf("compute node %s has no hypervisor hostname", node.UUID)
			}
			if _, ok := seen[node.UUID]; ok {
				return fmt.Errorf("compute node %s is configured twice", node.UUID)
			}
			seen[node.UUID] = struct{}{}
		}
	default:
		return fmt.Errorf("unknown capacity source %q", c.ReporterConfig.Source)
	}
	return nil
}
