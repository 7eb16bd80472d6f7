// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package compute

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/cobaltcore-dev/placement-reporter/internal/reportclient"
	"github.com/cobaltcore-dev/placement-reporter/internal/resources"
)

// Prefix of flavor extra specs that request amounts of a resource class.
const resourcesExtraSpecPrefix = "resources:"

type Flavor struct {
	VCPUs       int
	MemoryMB    int
	RootGB      int
	EphemeralGB int
	SwapMB      int
	// Extra specs such as "resources:CUSTOM_BAREMETAL_GOLD": "1".
	ExtraSpecs map[string]string
}

// Instance consuming resources on a compute node.
type Instance struct {
	UUID      string
	ProjectID string
	UserID    string
	Flavor    Flavor
}

// Placement consumer of the instance.
func (i Instance) Consumer() reportclient.Consumer {
	return reportclient.Consumer{UUID: i.UUID, ProjectID: i.ProjectID, UserID: i.UserID}
}

// Resources used by the instance. Amounts requested in the extra specs of
// the flavor take precedence over the flavor's own sizes.
func (i Instance) Resources() resources.Resources {
	res := resources.Resources{
		resources.VCPU:     i.Flavor.VCPUs,
		resources.MemoryMB: i.Flavor.MemoryMB,
		resources.DiskGB:   i.Flavor.RootGB + i.Flavor.EphemeralGB + mbToCeilGB(i.Flavor.SwapMB),
	}
	for key, value := range i.Flavor.ExtraSpecs {
		class, ok := strings.CutPrefix(key, resourcesExtraSpecPrefix)
		if !ok || class == "" {
			continue
		}
		amount, err := strconv.Atoi(value)
		if err != nil || amount < 0 {
			slog.Warn("ignoring invalid resource amount in flavor extra specs",
				"instance", i.UUID, "key", key, "value", value)
			continue
		}
		res[class] = amount
	}
	return res.WithoutZeros()
}
