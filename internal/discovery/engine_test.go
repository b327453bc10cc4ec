package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dmarzo/otmap/internal/capture"
	"github.com/dmarzo/otmap/internal/inventory"
	"github.com/dmarzo/otmap/internal/models"
	"github.com/dmarzo/otmap/internal/oui"
)

const (
	macA = "AA:BB:CC:DD:EE:01"
	macB = "AA:BB:CC:DD:EE:02"
)

const testRegistry = `
AA-BB-CC   (hex)		Acme Industrial
AABBCC     (base 16)		Acme Industrial
`

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Asset{}, &models.Interface{}, &models.Manufacturer{},
		&models.AssetType{}, &models.AssetStatus{}, &models.Site{},
		&models.Communication{}, &models.Connection{},
	))
	return db
}

func testEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	require.NoError(t, db.Create(&models.AssetStatus{Name: "Active"}).Error)

	regPath := filepath.Join(t.TempDir(), "oui.txt")
	require.NoError(t, os.WriteFile(regPath, []byte(testRegistry), 0o644))

	repo := inventory.NewGormRepository(db)
	return NewEngine(repo, oui.NewResolver(regPath)), db
}

func testScope() inventory.Scope {
	return inventory.Scope{TenantID: 1, SiteID: 1, Username: "admin"}
}

// modbusBatch mirrors three Modbus/TCP frames from device A to device B.
func modbusBatch() *capture.Result {
	res := capture.NewResult()
	res.Devices[macA] = &capture.Device{IPs: []string{"10.0.0.1"}, Protocols: []string{"Modbus"}}
	res.Devices[macB] = &capture.Device{IPs: []string{"10.0.0.2"}, Protocols: []string{"Modbus"}}
	res.Comms.Count(macA, macB, 3)
	return res
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestPreviewNewDevices(t *testing.T) {
	engine, db := testEngine(t)

	p, err := engine.Preview(testScope(), modbusBatch())
	require.NoError(t, err)

	require.Len(t, p.ToCreate, 2)
	assert.Empty(t, p.ToUpdate)
	assert.Equal(t, macA, p.ToCreate[0].MAC)
	assert.Equal(t, "imported - 10.0.0.1", p.ToCreate[0].Name)
	assert.Equal(t, "Acme Industrial", p.ToCreate[0].Vendor)
	assert.True(t, p.ToCreate[0].ManufacturerNew)

	assert.Equal(t, []string{"Acme Industrial"}, p.ManufacturersToCreate)
	assert.Len(t, p.InterfacesToCreate, 2)

	require.Len(t, p.Communications, 1)
	assert.Equal(t, CommPreview{SrcMAC: macA, DstMAC: macB, Count: 3}, p.Communications[0])

	// Preview is pure: nothing was written.
	assert.Zero(t, countRows(t, db, &models.Asset{}))
	assert.Zero(t, countRows(t, db, &models.Interface{}))
	assert.Zero(t, countRows(t, db, &models.Manufacturer{}))
}

func TestCommitEndToEnd(t *testing.T) {
	engine, db := testEngine(t)

	res, err := engine.Commit(testScope(), modbusBatch())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 2, res.TotalDevices)
	assert.Empty(t, res.Errors)

	assert.EqualValues(t, 2, countRows(t, db, &models.Asset{}))
	assert.EqualValues(t, 2, countRows(t, db, &models.Interface{}))

	var asset models.Asset
	require.NoError(t, db.Where("discovered_mac = ?", macA).First(&asset).Error)
	assert.Equal(t, "imported - 10.0.0.1", asset.Name)
	assert.Equal(t, "Acme Industrial", asset.Discovered.Vendor)
	assert.Equal(t, importSource, asset.Discovered.Source)
	assert.Equal(t, models.StringList{"Modbus"}, asset.Protocols)

	var iface models.Interface
	require.NoError(t, db.Where("mac_address = ?", macA).First(&iface).Error)
	assert.Equal(t, "eth0", iface.Name)
	assert.Equal(t, "ethernet", iface.Type)
	assert.Equal(t, "10.0.0.1", iface.IPAddress)

	var comm models.Communication
	require.NoError(t, db.First(&comm).Error)
	assert.EqualValues(t, 3, comm.PacketCount)

	var dstIface models.Interface
	require.NoError(t, db.Where("mac_address = ?", macB).First(&dstIface).Error)
	assert.Equal(t, dstIface.ID, comm.DstInterfaceID)
}

func TestCommitIdempotent(t *testing.T) {
	engine, db := testEngine(t)

	_, err := engine.Commit(testScope(), modbusBatch())
	require.NoError(t, err)

	second, err := engine.Commit(testScope(), modbusBatch())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)

	// No duplicates on the second run.
	assert.EqualValues(t, 2, countRows(t, db, &models.Asset{}))
	assert.EqualValues(t, 2, countRows(t, db, &models.Interface{}))
	assert.EqualValues(t, 1, countRows(t, db, &models.Communication{}))
	assert.EqualValues(t, 1, countRows(t, db, &models.Manufacturer{}))
}

func TestPacketCountOverwritten(t *testing.T) {
	engine, db := testEngine(t)

	_, err := engine.Commit(testScope(), modbusBatch())
	require.NoError(t, err)

	bigger := modbusBatch()
	bigger.Comms[macA][macB] = 5
	_, err = engine.Commit(testScope(), bigger)
	require.NoError(t, err)

	var comm models.Communication
	require.NoError(t, db.First(&comm).Error)
	// Most recent reconciliation wins; counts do not accumulate across imports.
	assert.EqualValues(t, 5, comm.PacketCount)
	assert.EqualValues(t, 1, countRows(t, db, &models.Communication{}))
}

func seedAssetWithInterface(t *testing.T, db *gorm.DB, name, mac, ip string) *models.Asset {
	t.Helper()
	asset := &models.Asset{TenantID: 1, SiteID: 1, Name: name}
	require.NoError(t, db.Create(asset).Error)
	require.NoError(t, db.Create(&models.Interface{
		AssetID:    asset.ID,
		TenantID:   1,
		Name:       "eth0",
		Type:       "ethernet",
		MACAddress: mac,
		IPAddress:  ip,
	}).Error)
	return asset
}

func TestAmbiguousIPNeverAutoLinks(t *testing.T) {
	engine, db := testEngine(t)

	// Two existing interfaces both hold 10.0.0.5.
	seedAssetWithInterface(t, db, "plc-1", "11:11:11:11:11:01", "10.0.0.5")
	seedAssetWithInterface(t, db, "plc-2", "11:11:11:11:11:02", "10.0.0.5")

	res := capture.NewResult()
	res.Devices["22:22:22:22:22:22"] = &capture.Device{IPs: []string{"10.0.0.5"}}

	p, err := engine.Preview(testScope(), res)
	require.NoError(t, err)
	require.Len(t, p.ToCreate, 1)
	assert.Empty(t, p.ToUpdate)

	commit, err := engine.Commit(testScope(), res)
	require.NoError(t, err)
	assert.Equal(t, 1, commit.Created)
	assert.EqualValues(t, 3, countRows(t, db, &models.Asset{}))
}

func TestSingleOwnerIPFallback(t *testing.T) {
	engine, db := testEngine(t)

	existing := seedAssetWithInterface(t, db, "hmi-7", "11:11:11:11:11:07", "10.0.0.7")

	// Same IP, different (previously unseen) MAC, exactly one owner.
	res := capture.NewResult()
	res.Devices["22:22:22:22:22:07"] = &capture.Device{
		IPs:       []string{"10.0.0.7"},
		Protocols: []string{"S7"},
	}

	p, err := engine.Preview(testScope(), res)
	require.NoError(t, err)
	assert.Empty(t, p.ToCreate)
	require.Len(t, p.ToUpdate, 1)
	assert.Equal(t, "hmi-7", p.ToUpdate[0].Name)
	assert.Equal(t, FieldDiff{Old: "", New: oui.UnknownVendor}, p.ToUpdate[0].Diff["manufacturer"])

	commit, err := engine.Commit(testScope(), res)
	require.NoError(t, err)
	assert.Equal(t, 0, commit.Created)
	assert.Equal(t, 1, commit.Updated)

	var reloaded models.Asset
	require.NoError(t, db.First(&reloaded, existing.ID).Error)
	assert.Equal(t, models.StringList{"S7"}, reloaded.Protocols)
	assert.Equal(t, "22:22:22:22:22:07", reloaded.Discovered.MAC)
}

func TestMultiIPDeviceSkipsFallback(t *testing.T) {
	engine, db := testEngine(t)

	seedAssetWithInterface(t, db, "gw-1", "11:11:11:11:11:09", "10.0.0.9")

	// Two IPs on the discovered device: the IP fallback must not fire even
	// though one of them has a single owner.
	res := capture.NewResult()
	res.Devices["22:22:22:22:22:09"] = &capture.Device{IPs: []string{"10.0.0.9", "10.0.1.9"}}

	p, err := engine.Preview(testScope(), res)
	require.NoError(t, err)
	require.Len(t, p.ToCreate, 1)
	assert.Empty(t, p.ToUpdate)
}

func TestCommunicationEdgeDroppedWithoutAsset(t *testing.T) {
	engine, db := testEngine(t)

	// Only device A is discovered; B appears solely as a destination MAC
	// with no asset anywhere.
	res := capture.NewResult()
	res.Devices[macA] = &capture.Device{IPs: []string{"10.0.0.1"}}
	res.Comms.Count(macA, "FF:EE:DD:CC:BB:AA", 9)

	commit, err := engine.Commit(testScope(), res)
	require.NoError(t, err)
	assert.Empty(t, commit.Errors)
	assert.Zero(t, countRows(t, db, &models.Communication{}))
}

func TestAutoImportedInterface(t *testing.T) {
	engine, db := testEngine(t)

	// Asset known by discovered MAC but its interface row is gone.
	_, err := engine.Commit(testScope(), modbusBatch())
	require.NoError(t, err)
	require.NoError(t, db.Where("mac_address = ?", macB).Delete(&models.Interface{}).Error)

	res := capture.NewResult()
	res.Devices[macA] = &capture.Device{IPs: []string{"10.0.0.1"}}
	res.Comms.Count(macA, macB, 2)

	_, err = engine.Commit(testScope(), res)
	require.NoError(t, err)

	var iface models.Interface
	require.NoError(t, db.Where("mac_address = ?", macB).First(&iface).Error)
	assert.Equal(t, "Auto-imported", iface.Name)
}

func TestManufacturerMatchIsExact(t *testing.T) {
	engine, db := testEngine(t)

	// Same vendor, different casing: exact matching creates a second row.
	require.NoError(t, db.Create(&models.Manufacturer{TenantID: 1, Name: "ACME INDUSTRIAL"}).Error)

	res := capture.NewResult()
	res.Devices[macA] = &capture.Device{IPs: []string{"10.0.0.1"}}
	_, err := engine.Commit(testScope(), res)
	require.NoError(t, err)

	assert.EqualValues(t, 2, countRows(t, db, &models.Manufacturer{}))
}

func TestUnknownVendorSentinel(t *testing.T) {
	engine, db := testEngine(t)

	res := capture.NewResult()
	res.Devices["DE:AD:BE:EF:00:01"] = &capture.Device{}
	commit, err := engine.Commit(testScope(), res)
	require.NoError(t, err)
	assert.Equal(t, 1, commit.Created)

	var m models.Manufacturer
	require.NoError(t, db.Where("name = ?", oui.UnknownVendor).First(&m).Error)

	var asset models.Asset
	require.NoError(t, db.Where("discovered_mac = ?", "DE:AD:BE:EF:00:01").First(&asset).Error)
	assert.Equal(t, "imported - unknown", asset.Name)
	assert.Equal(t, m.ID, asset.ManufacturerID)
}
