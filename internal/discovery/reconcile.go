// Package discovery reconciles passively discovered network entities against
// the persisted asset inventory. Preview computes a diff without writing
// anything; Commit runs the identical matching and then persists through the
// asset and communication synchronizers.
package discovery

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dmarzo/otmap/internal/capture"
	"github.com/dmarzo/otmap/internal/inventory"
	"github.com/dmarzo/otmap/internal/models"
	"github.com/dmarzo/otmap/internal/oui"
)

// importSource tags the discovered-identity record on synced assets.
const importSource = "pcap-import"

// Engine matches discovered devices against the inventory.
type Engine struct {
	repo inventory.Repository
	oui  *oui.Resolver

	// locks serializes Commit per (tenant, site) so two concurrent imports
	// cannot race on the same MAC.
	locks sync.Map
}

// NewEngine builds an engine on the given repository and OUI resolver.
func NewEngine(repo inventory.Repository, resolver *oui.Resolver) *Engine {
	return &Engine{repo: repo, oui: resolver}
}

// FieldDiff reports one changed field on a matched asset.
type FieldDiff struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// AssetPreview describes one discovered device in a preview response.
type AssetPreview struct {
	MAC             string               `json:"mac"`
	IP              string               `json:"ip"`
	Name            string               `json:"name"`
	Vendor          string               `json:"vendor"`
	ManufacturerNew bool                 `json:"manufacturer_new"`
	Protocols       []string             `json:"protocols"`
	Diff            map[string]FieldDiff `json:"diff,omitempty"`
}

// InterfacePreview describes an interface that a commit would create.
type InterfacePreview struct {
	MAC       string `json:"mac"`
	AssetName string `json:"asset_name"`
	IP        string `json:"ip"`
	Vendor    string `json:"vendor"`
}

// CommPreview is one discovered traffic edge.
type CommPreview struct {
	SrcMAC string `json:"src_mac"`
	DstMAC string `json:"dst_mac"`
	Count  int64  `json:"count"`
}

// Preview is the non-mutating reconciliation result.
type Preview struct {
	ToCreate              []AssetPreview     `json:"to_create"`
	ToUpdate              []AssetPreview     `json:"to_update"`
	ManufacturersToCreate []string           `json:"manufacturers_to_create"`
	InterfacesToCreate    []InterfacePreview `json:"interfaces_to_create"`
	Communications        []CommPreview      `json:"communications"`
}

// match resolves a discovered MAC to an existing asset, MAC-first with a
// conservative single-owner IP fallback. The returned interface is the one
// the match went through (nil when unmatched).
func (e *Engine) match(scope inventory.Scope, mac string, dev *capture.Device) (*models.Asset, *models.Interface, error) {
	iface, err := e.repo.InterfaceByMAC(scope.TenantID, mac)
	if err != nil {
		return nil, nil, fmt.Errorf("interface lookup by mac: %w", err)
	}
	if iface != nil {
		asset, err := e.repo.AssetByID(iface.AssetID)
		if err != nil {
			return nil, nil, fmt.Errorf("asset lookup: %w", err)
		}
		return asset, iface, nil
	}

	// IP fallback only when the device carries exactly one IP and exactly one
	// existing interface owns it. Multi-owner IPs are never auto-linked.
	if len(dev.IPs) != 1 {
		return nil, nil, nil
	}
	owners, err := e.repo.InterfacesByIP(scope.TenantID, dev.IPs[0])
	if err != nil {
		return nil, nil, fmt.Errorf("interface lookup by ip: %w", err)
	}
	if len(owners) != 1 {
		return nil, nil, nil
	}
	asset, err := e.repo.AssetByID(owners[0].AssetID)
	if err != nil {
		return nil, nil, fmt.Errorf("asset lookup: %w", err)
	}
	return asset, &owners[0], nil
}

// proposedName is the name a new asset gets: "imported - {firstIP}" or
// "imported - unknown".
func proposedName(dev *capture.Device) string {
	if ip := dev.FirstIP(); ip != "" {
		return "imported - " + ip
	}
	return "imported - unknown"
}

// sortedMACs returns the device keys in stable order.
func sortedMACs(devices capture.DeviceMap) []string {
	macs := make([]string, 0, len(devices))
	for mac := range devices {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs
}

// Preview reconciles the aggregated result against the current inventory
// snapshot and reports what a commit would do. It performs no writes.
func (e *Engine) Preview(scope inventory.Scope, res *capture.Result) (*Preview, error) {
	p := &Preview{
		ToCreate:              []AssetPreview{},
		ToUpdate:              []AssetPreview{},
		ManufacturersToCreate: []string{},
		InterfacesToCreate:    []InterfacePreview{},
		Communications:        []CommPreview{},
	}

	existing, err := e.repo.ManufacturersByTenant(scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("loading manufacturers: %w", err)
	}
	knownVendors := map[string]bool{}
	for _, m := range existing {
		knownVendors[m.Name] = true
	}
	newVendors := map[string]bool{}

	for _, mac := range sortedMACs(res.Devices) {
		dev := res.Devices[mac]
		vendor := e.oui.Resolve(mac)

		manufacturerNew := !knownVendors[vendor]
		if manufacturerNew {
			newVendors[vendor] = true
		}

		asset, iface, err := e.match(scope, mac, dev)
		if err != nil {
			return nil, err
		}

		info := AssetPreview{
			MAC:             mac,
			IP:              dev.FirstIP(),
			Name:            proposedName(dev),
			Vendor:          vendor,
			ManufacturerNew: manufacturerNew,
			Protocols:       dev.Protocols,
		}

		if asset != nil {
			info.Name = asset.Name
			info.Diff = diffAsset(asset, iface, dev, vendor)
			p.ToUpdate = append(p.ToUpdate, info)
		} else {
			p.ToCreate = append(p.ToCreate, info)
		}

		// An interface is created whenever no existing one carries the MAC,
		// for matched (IP-fallback or new) and unmatched devices alike.
		byMAC, err := e.repo.InterfaceByMAC(scope.TenantID, mac)
		if err != nil {
			return nil, fmt.Errorf("interface lookup by mac: %w", err)
		}
		if byMAC == nil {
			p.InterfacesToCreate = append(p.InterfacesToCreate, InterfacePreview{
				MAC:       mac,
				AssetName: info.Name,
				IP:        dev.FirstIP(),
				Vendor:    vendor,
			})
		}
	}

	for vendor := range newVendors {
		p.ManufacturersToCreate = append(p.ManufacturersToCreate, vendor)
	}
	sort.Strings(p.ManufacturersToCreate)

	for _, srcMAC := range sortedKeys(res.Comms) {
		dsts := res.Comms[srcMAC]
		for _, dstMAC := range sortedKeys2(dsts) {
			p.Communications = append(p.Communications, CommPreview{
				SrcMAC: srcMAC,
				DstMAC: dstMAC,
				Count:  dsts[dstMAC],
			})
		}
	}

	return p, nil
}

// diffAsset reports field-level changes a commit would apply to a matched
// asset. Reporting only; commit does not consume it.
func diffAsset(asset *models.Asset, iface *models.Interface, dev *capture.Device, vendor string) map[string]FieldDiff {
	diff := map[string]FieldDiff{}

	if ip := dev.FirstIP(); ip != "" && iface != nil && iface.IPAddress != ip {
		diff["ip_address"] = FieldDiff{Old: iface.IPAddress, New: ip}
	}

	oldVendor := ""
	if asset.Manufacturer != nil {
		oldVendor = asset.Manufacturer.Name
	}
	if vendor != "" && oldVendor != vendor {
		diff["manufacturer"] = FieldDiff{Old: oldVendor, New: vendor}
	}

	return diff
}

func sortedKeys(m capture.CommMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys2(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
