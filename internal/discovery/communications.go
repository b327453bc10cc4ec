package discovery

import (
	"fmt"

	"github.com/dmarzo/otmap/internal/capture"
	"github.com/dmarzo/otmap/internal/inventory"
	"github.com/dmarzo/otmap/internal/models"
)

// autoImportedName marks interfaces created as a side effect of communication
// sync, when an asset is known by its discovered MAC but has no interface
// carrying it yet.
const autoImportedName = "Auto-imported"

// syncCommunications converts MAC-level traffic counters into persisted
// interface-level communication edges. Edges where either side resolves to no
// asset are dropped: no orphan edges.
func (e *Engine) syncCommunications(scope inventory.Scope, comms capture.CommMap) error {
	cache := map[string]*models.Interface{}

	for _, srcMAC := range sortedKeys(comms) {
		srcIface, err := e.resolveCommInterface(scope, srcMAC, cache)
		if err != nil {
			return err
		}
		if srcIface == nil {
			continue
		}

		dsts := comms[srcMAC]
		for _, dstMAC := range sortedKeys2(dsts) {
			dstIface, err := e.resolveCommInterface(scope, dstMAC, cache)
			if err != nil {
				return err
			}
			if dstIface == nil {
				continue
			}

			edge := &models.Communication{
				SrcInterfaceID: srcIface.ID,
				DstInterfaceID: dstIface.ID,
				TenantID:       scope.TenantID,
				SiteID:         scope.SiteID,
				PacketCount:    dsts[dstMAC],
			}
			if err := e.repo.UpsertCommunication(edge); err != nil {
				return fmt.Errorf("upserting edge %s -> %s: %w", srcMAC, dstMAC, err)
			}
		}
	}
	return nil
}

// resolveCommInterface finds the interface for a MAC, creating a minimal one
// when the owning asset is known but the interface is missing. Returns nil
// when no asset owns the MAC.
func (e *Engine) resolveCommInterface(scope inventory.Scope, mac string, cache map[string]*models.Interface) (*models.Interface, error) {
	if iface, ok := cache[mac]; ok {
		return iface, nil
	}

	iface, err := e.repo.InterfaceByMAC(scope.TenantID, mac)
	if err != nil {
		return nil, fmt.Errorf("interface lookup for %s: %w", mac, err)
	}
	if iface == nil {
		asset, err := e.repo.AssetByDiscoveredMAC(scope.TenantID, mac)
		if err != nil {
			return nil, fmt.Errorf("asset lookup for %s: %w", mac, err)
		}
		if asset == nil {
			cache[mac] = nil
			return nil, nil
		}
		iface = &models.Interface{
			AssetID:    asset.ID,
			TenantID:   scope.TenantID,
			Name:       autoImportedName,
			Type:       "ethernet",
			MACAddress: mac,
		}
		if err := e.repo.CreateInterface(iface); err != nil {
			return nil, fmt.Errorf("creating auto-imported interface for %s: %w", mac, err)
		}
	}

	cache[mac] = iface
	return iface, nil
}
