package inventory

import (
	"errors"

	"gorm.io/gorm"

	"github.com/dmarzo/otmap/internal/models"
)

// GormRepository implements Repository on a gorm handle.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository wraps an already-migrated gorm DB.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// notFoundAsNil converts gorm's ErrRecordNotFound into a nil record, which is
// how the discovery engine distinguishes "no match" from real failures.
func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// ── Interfaces ───────────────────────────────────────────────────────────────

func (r *GormRepository) InterfaceByMAC(tenantID uint, mac string) (*models.Interface, error) {
	var iface models.Interface
	err := r.db.Where("tenant_id = ? AND mac_address = ?", tenantID, mac).First(&iface).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &iface, nil
}

func (r *GormRepository) InterfacesByIP(tenantID uint, ip string) ([]models.Interface, error) {
	var ifaces []models.Interface
	err := r.db.Where("tenant_id = ? AND ip_address = ?", tenantID, ip).Find(&ifaces).Error
	return ifaces, err
}

func (r *GormRepository) CreateInterface(iface *models.Interface) error {
	return r.db.Create(iface).Error
}

func (r *GormRepository) UpdateInterfaceProtocols(ifaceID uint, protocols []string) error {
	return r.db.Model(&models.Interface{}).Where("id = ?", ifaceID).
		Update("protocols", models.StringList(protocols)).Error
}

// ── Assets ───────────────────────────────────────────────────────────────────

func (r *GormRepository) AssetByID(id uint) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.Preload("Manufacturer").Preload("Interfaces").First(&asset, id).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &asset, nil
}

func (r *GormRepository) AssetByDiscoveredMAC(tenantID uint, mac string) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.Where("tenant_id = ? AND discovered_mac = ?", tenantID, mac).First(&asset).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &asset, nil
}

func (r *GormRepository) AssetsByTenant(tenantID uint) ([]models.Asset, error) {
	var assets []models.Asset
	err := r.db.Preload("Manufacturer").Where("tenant_id = ?", tenantID).Find(&assets).Error
	return assets, err
}

func (r *GormRepository) CreateAsset(asset *models.Asset) error {
	return r.db.Create(asset).Error
}

func (r *GormRepository) UpdateAsset(asset *models.Asset) error {
	return r.db.Save(asset).Error
}

// ── Manufacturers ────────────────────────────────────────────────────────────

func (r *GormRepository) ManufacturerByName(tenantID uint, name string) (*models.Manufacturer, error) {
	var m models.Manufacturer
	err := r.db.Where("tenant_id = ? AND name = ?", tenantID, name).First(&m).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &m, nil
}

func (r *GormRepository) ManufacturersByTenant(tenantID uint) ([]models.Manufacturer, error) {
	var ms []models.Manufacturer
	err := r.db.Where("tenant_id = ?", tenantID).Find(&ms).Error
	return ms, err
}

func (r *GormRepository) CreateManufacturer(m *models.Manufacturer) error {
	return r.db.Create(m).Error
}

// ── Lookup tables ────────────────────────────────────────────────────────────

func (r *GormRepository) AssetTypeByName(name string) (*models.AssetType, error) {
	var t models.AssetType
	err := r.db.Where("name = ?", name).First(&t).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &t, nil
}

func (r *GormRepository) CreateAssetType(t *models.AssetType) error {
	return r.db.Create(t).Error
}

func (r *GormRepository) StatusByName(name string) (*models.AssetStatus, error) {
	var s models.AssetStatus
	err := r.db.Where("name = ?", name).First(&s).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &s, nil
}

func (r *GormRepository) FirstStatus() (*models.AssetStatus, error) {
	var s models.AssetStatus
	err := r.db.Order("id").First(&s).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &s, nil
}

// ── Sites ────────────────────────────────────────────────────────────────────

func (r *GormRepository) SiteByID(tenantID, siteID uint) (*models.Site, error) {
	var s models.Site
	err := r.db.Where("tenant_id = ? AND id = ?", tenantID, siteID).First(&s).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &s, nil
}

// ── Communication edges ──────────────────────────────────────────────────────

// UpsertCommunication overwrites packet_count when the edge exists, keyed by
// (src_interface, dst_interface, tenant, site); otherwise it inserts.
func (r *GormRepository) UpsertCommunication(comm *models.Communication) error {
	var existing models.Communication
	err := r.db.Where(
		"src_interface_id = ? AND dst_interface_id = ? AND tenant_id = ? AND site_id = ?",
		comm.SrcInterfaceID, comm.DstInterfaceID, comm.TenantID, comm.SiteID,
	).First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(comm).Error
	}
	if err != nil {
		return err
	}
	return r.db.Model(&existing).Update("packet_count", comm.PacketCount).Error
}

// ── Connections ──────────────────────────────────────────────────────────────

func (r *GormRepository) ConnectionsByTenant(tenantID uint, siteID, assetTypeID uint) ([]models.Connection, error) {
	q := r.db.Where("connections.tenant_id = ?", tenantID)
	if siteID != 0 || assetTypeID != 0 {
		q = q.Joins("JOIN assets ON assets.id = connections.parent_asset_id")
		if siteID != 0 {
			q = q.Where("assets.site_id = ?", siteID)
		}
		if assetTypeID != 0 {
			q = q.Where("assets.asset_type_id = ?", assetTypeID)
		}
	}
	var conns []models.Connection
	err := q.Find(&conns).Error
	return conns, err
}

func (r *GormRepository) ConnectionsByParent(tenantID, parentAssetID uint) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.Where("tenant_id = ? AND parent_asset_id = ?", tenantID, parentAssetID).Find(&conns).Error
	return conns, err
}

func (r *GormRepository) AssetsByIDs(ids []uint) ([]models.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var assets []models.Asset
	err := r.db.Preload("Manufacturer").Where("id IN ?", ids).Find(&assets).Error
	return assets, err
}

func (r *GormRepository) CountAssets(tenantID, siteID uint) (int64, error) {
	q := r.db.Model(&models.Asset{}).Where("tenant_id = ?", tenantID)
	if siteID != 0 {
		q = q.Where("site_id = ?", siteID)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
