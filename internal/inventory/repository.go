// Package inventory is the persistence boundary of the discovery engine.
// The engine depends only on the narrow Repository interface defined here,
// never on gorm directly, so reconciliation logic stays testable against an
// in-memory database and blind to the storage engine.
package inventory

import (
	"github.com/dmarzo/otmap/internal/models"
)

// Scope carries the opaque tenancy values every repository call is bound to.
// It comes from the session layer; the discovery engine never invents one.
type Scope struct {
	TenantID uint
	SiteID   uint
	Username string
}

// Repository is the narrow set of inventory operations discovery needs.
type Repository interface {
	// Interfaces
	InterfaceByMAC(tenantID uint, mac string) (*models.Interface, error)
	InterfacesByIP(tenantID uint, ip string) ([]models.Interface, error)
	CreateInterface(iface *models.Interface) error
	UpdateInterfaceProtocols(ifaceID uint, protocols []string) error

	// Assets
	AssetByID(id uint) (*models.Asset, error)
	AssetByDiscoveredMAC(tenantID uint, mac string) (*models.Asset, error)
	AssetsByTenant(tenantID uint) ([]models.Asset, error)
	CreateAsset(asset *models.Asset) error
	UpdateAsset(asset *models.Asset) error

	// Manufacturers
	ManufacturerByName(tenantID uint, name string) (*models.Manufacturer, error)
	ManufacturersByTenant(tenantID uint) ([]models.Manufacturer, error)
	CreateManufacturer(m *models.Manufacturer) error

	// Lookup tables
	AssetTypeByName(name string) (*models.AssetType, error)
	CreateAssetType(t *models.AssetType) error
	StatusByName(name string) (*models.AssetStatus, error)
	FirstStatus() (*models.AssetStatus, error)

	// Sites
	SiteByID(tenantID, siteID uint) (*models.Site, error)

	// Communication edges
	UpsertCommunication(comm *models.Communication) error

	// Connections (read-only for topology)
	ConnectionsByTenant(tenantID uint, siteID, assetTypeID uint) ([]models.Connection, error)
	ConnectionsByParent(tenantID, parentAssetID uint) ([]models.Connection, error)
	AssetsByIDs(ids []uint) ([]models.Asset, error)
	CountAssets(tenantID, siteID uint) (int64, error)
}
