// Package models defines GORM data models for OTMap.
package models

import (
	"gorm.io/gorm"
)

// DiscoveredIdentity records how passive discovery last identified an asset.
// It is embedded in Asset so the MAC/vendor pair lives in typed columns rather
// than inside the free-form custom-fields blob.
type DiscoveredIdentity struct {
	MAC    string `gorm:"column:discovered_mac;index" json:"mac"`
	Vendor string `gorm:"column:discovered_vendor" json:"vendor"`
	Source string `gorm:"column:discovered_source" json:"source"`
}

// Asset is a tenant-scoped device record in the inventory.
type Asset struct {
	gorm.Model

	TenantID uint `gorm:"index;not null" json:"tenant_id"`
	SiteID   uint `gorm:"index" json:"site_id"`

	Name           string `gorm:"not null" json:"name"`
	AssetTypeID    uint   `gorm:"index" json:"asset_type_id"`
	StatusID       uint   `json:"status_id"`
	ManufacturerID uint   `gorm:"index" json:"manufacturer_id"`

	// Protocols observed or assigned for the whole asset, JSON-encoded.
	Protocols StringList `gorm:"type:text" json:"protocols"`

	Discovered DiscoveredIdentity `gorm:"embedded" json:"discovered"`

	Manufacturer *Manufacturer `gorm:"foreignKey:ManufacturerID" json:"manufacturer,omitempty"`
	Interfaces   []Interface   `gorm:"foreignKey:AssetID" json:"interfaces,omitempty"`
}

// Interface is a network interface belonging to exactly one Asset.
// MACAddress is stored canonical: upper-case, colon-separated.
type Interface struct {
	gorm.Model

	AssetID  uint `gorm:"index;not null" json:"asset_id"`
	TenantID uint `gorm:"index;not null" json:"tenant_id"`

	Name       string     `gorm:"not null" json:"name"`
	Type       string     `json:"type"`
	MACAddress string     `gorm:"index" json:"mac_address"`
	IPAddress  string     `gorm:"index" json:"ip_address"`
	Protocols  StringList `gorm:"type:text" json:"protocols"`
}

// Manufacturer is resolved from the OUI registry during discovery or entered
// by operators. Uniqueness is per tenant.
type Manufacturer struct {
	gorm.Model

	TenantID    uint   `gorm:"index;not null;uniqueIndex:idx_manufacturer_tenant_name" json:"tenant_id"`
	Name        string `gorm:"not null;uniqueIndex:idx_manufacturer_tenant_name" json:"name"`
	Description string `json:"description"`
}

// AssetType classifies assets ("Network Device", "PLC", ...).
type AssetType struct {
	gorm.Model

	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// AssetStatus is a lifecycle status row ("Active", "Dismissed", ...).
type AssetStatus struct {
	gorm.Model

	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// Site is the physical location discovery runs are scoped to.
type Site struct {
	gorm.Model

	TenantID uint   `gorm:"index;not null" json:"tenant_id"`
	Name     string `gorm:"not null" json:"name"`
}

// Communication is a passively-observed traffic edge between two interfaces.
// PacketCount reflects the most recent reconciliation for this edge.
type Communication struct {
	gorm.Model

	SrcInterfaceID uint `gorm:"not null;uniqueIndex:idx_comm_edge" json:"src_interface_id"`
	DstInterfaceID uint `gorm:"not null;uniqueIndex:idx_comm_edge" json:"dst_interface_id"`
	TenantID       uint `gorm:"not null;uniqueIndex:idx_comm_edge" json:"tenant_id"`
	SiteID         uint `gorm:"not null;uniqueIndex:idx_comm_edge" json:"site_id"`

	PacketCount int64 `json:"packet_count"`
}

// Connection is a user-modeled parent/child edge between two assets,
// optionally bound to specific interfaces. Unlike Communication it is
// hand-entered and may form cycles.
type Connection struct {
	gorm.Model

	TenantID uint `gorm:"index;not null" json:"tenant_id"`

	ParentAssetID uint `gorm:"index;not null" json:"parent_asset_id"`
	ChildAssetID  uint `gorm:"index;not null" json:"child_asset_id"`

	LocalInterfaceID  *uint `json:"local_interface_id,omitempty"`
	RemoteInterfaceID *uint `json:"remote_interface_id,omitempty"`

	ConnectionType string `json:"connection_type"`
	Protocol       string `json:"protocol"`
	PortParent     string `json:"port_parent"`
	PortChild      string `json:"port_child"`
}
