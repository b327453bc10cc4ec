package discovery

import (
	"fmt"
	"log"
	"sync"

	"github.com/dmarzo/otmap/internal/capture"
	"github.com/dmarzo/otmap/internal/inventory"
	"github.com/dmarzo/otmap/internal/models"
	"github.com/dmarzo/otmap/internal/oui"
)

const (
	networkDeviceType = "Network Device"
	activeStatusName  = "Active"
)

// CommitResult summarizes a persisted reconciliation.
type CommitResult struct {
	Created      int      `json:"created"`
	Updated      int      `json:"updated"`
	TotalDevices int      `json:"total_devices_found"`
	Errors       []string `json:"errors,omitempty"`
}

// Commit runs the same matching as Preview and persists the outcome.
// Writes are serialized per (tenant, site): a second import for the same
// scope waits instead of racing last-writer-wins.
//
// The batch is not one transaction. A device that fails to sync is recorded
// in Errors and the rest of the batch continues.
func (e *Engine) Commit(scope inventory.Scope, res *capture.Result) (*CommitResult, error) {
	key := fmt.Sprintf("%d/%d", scope.TenantID, scope.SiteID)
	entry, _ := e.locks.LoadOrStore(key, &sync.Mutex{})
	mu := entry.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	result := &CommitResult{TotalDevices: len(res.Devices)}

	assetType, err := e.networkDeviceType()
	if err != nil {
		return nil, err
	}

	for _, mac := range sortedMACs(res.Devices) {
		created, err := e.syncDevice(scope, assetType, mac, res.Devices[mac])
		if err != nil {
			log.Printf("[discovery] sync %s failed: %v", mac, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", mac, err))
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	if err := e.syncCommunications(scope, res.Comms); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("communications: %v", err))
	}

	return result, nil
}

// syncDevice creates or updates the asset and interface for one discovered
// device. Returns true when a new asset was created.
func (e *Engine) syncDevice(scope inventory.Scope, assetType *models.AssetType, mac string, dev *capture.Device) (bool, error) {
	asset, iface, err := e.match(scope, mac, dev)
	if err != nil {
		return false, err
	}

	vendor := e.oui.Resolve(mac)
	manufacturer, err := e.resolveManufacturer(scope, vendor)
	if err != nil {
		return false, err
	}

	if asset != nil {
		// Protocol lists are replaced, not unioned: the capture is the
		// current observation of what the device speaks.
		asset.SiteID = scope.SiteID
		asset.ManufacturerID = manufacturer.ID
		asset.Protocols = models.StringList(dev.Protocols)
		asset.Discovered = models.DiscoveredIdentity{MAC: mac, Vendor: vendor, Source: importSource}
		asset.Manufacturer = nil
		asset.Interfaces = nil
		if err := e.repo.UpdateAsset(asset); err != nil {
			return false, fmt.Errorf("updating asset: %w", err)
		}
		if iface != nil {
			if err := e.repo.UpdateInterfaceProtocols(iface.ID, dev.Protocols); err != nil {
				return false, fmt.Errorf("updating interface protocols: %w", err)
			}
		}
		return false, nil
	}

	statusID, err := e.fallbackStatusID()
	if err != nil {
		return false, err
	}

	newAsset := &models.Asset{
		TenantID:       scope.TenantID,
		SiteID:         scope.SiteID,
		AssetTypeID:    assetType.ID,
		StatusID:       statusID,
		ManufacturerID: manufacturer.ID,
		Name:           proposedName(dev),
		Protocols:      models.StringList(dev.Protocols),
		Discovered:     models.DiscoveredIdentity{MAC: mac, Vendor: vendor, Source: importSource},
	}
	if err := e.repo.CreateAsset(newAsset); err != nil {
		return false, fmt.Errorf("creating asset: %w", err)
	}

	// Always create the interface, even without an IP: the MAC on it is what
	// makes a re-import of the same capture match instead of duplicating.
	newIface := &models.Interface{
		AssetID:    newAsset.ID,
		TenantID:   scope.TenantID,
		Name:       "eth0",
		Type:       "ethernet",
		MACAddress: mac,
		IPAddress:  dev.FirstIP(),
		Protocols:  models.StringList(dev.Protocols),
	}
	if err := e.repo.CreateInterface(newIface); err != nil {
		return false, fmt.Errorf("creating interface: %w", err)
	}
	return true, nil
}

// resolveManufacturer gets or creates the manufacturer for a vendor name.
// Matching is exact per (name, tenant).
func (e *Engine) resolveManufacturer(scope inventory.Scope, vendor string) (*models.Manufacturer, error) {
	if vendor == "" {
		vendor = oui.UnknownVendor
	}
	m, err := e.repo.ManufacturerByName(scope.TenantID, vendor)
	if err != nil {
		return nil, fmt.Errorf("manufacturer lookup: %w", err)
	}
	if m != nil {
		return m, nil
	}
	m = &models.Manufacturer{TenantID: scope.TenantID, Name: vendor}
	if err := e.repo.CreateManufacturer(m); err != nil {
		return nil, fmt.Errorf("creating manufacturer: %w", err)
	}
	return m, nil
}

// networkDeviceType gets or creates the "Network Device" asset type.
func (e *Engine) networkDeviceType() (*models.AssetType, error) {
	t, err := e.repo.AssetTypeByName(networkDeviceType)
	if err != nil {
		return nil, fmt.Errorf("asset type lookup: %w", err)
	}
	if t != nil {
		return t, nil
	}
	t = &models.AssetType{Name: networkDeviceType}
	if err := e.repo.CreateAssetType(t); err != nil {
		return nil, fmt.Errorf("creating asset type: %w", err)
	}
	return t, nil
}

// fallbackStatusID prefers the status named "Active", else the first status
// row, else zero when none are configured.
func (e *Engine) fallbackStatusID() (uint, error) {
	s, err := e.repo.StatusByName(activeStatusName)
	if err != nil {
		return 0, fmt.Errorf("status lookup: %w", err)
	}
	if s == nil {
		s, err = e.repo.FirstStatus()
		if err != nil {
			return 0, fmt.Errorf("status lookup: %w", err)
		}
	}
	if s == nil {
		return 0, nil
	}
	return s.ID, nil
}
