// REST API wiring. All discovery and topology routes sit behind the JWT
// middleware; only /api/login and /api/health are public.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmarzo/otmap/internal/config"
	"github.com/dmarzo/otmap/internal/discovery"
	"github.com/dmarzo/otmap/internal/inventory"
	"github.com/dmarzo/otmap/internal/oui"
	"github.com/dmarzo/otmap/internal/protocol"
	"github.com/dmarzo/otmap/internal/topology"
)

var (
	cfg         *config.Config
	repo        inventory.Repository
	engine      *discovery.Engine
	topoBuilder *topology.Builder
	ouiResolver *oui.Resolver
)

// Setup initializes the database and wires the discovery engine, topology
// builder and OUI resolver together. Call once before RegisterRoutes.
func Setup(c *config.Config) error {
	cfg = c
	if err := InitDB(c); err != nil {
		return err
	}
	repo = inventory.NewGormRepository(DB)
	ouiResolver = oui.NewResolver(c.OUIPath)
	engine = discovery.NewEngine(repo, ouiResolver)
	topoBuilder = topology.NewBuilder(repo)

	SetJWTSecret(c.JWTSecret)
	return SetAdminCredentials(c.AdminUser, c.AdminPass, c.AdminTenantID)
}

// RegisterRoutes wires up the API on the given engine.
func RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// ── Public endpoints ─────────────────────────────────────────────────────
	api.POST("/login", handleLogin)

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	// ── JWT-protected endpoints ──────────────────────────────────────────────
	auth := api.Group("/", JWTMiddleware())
	{
		// Capture import
		auth.POST("/pcap/preview", handlePcapPreview)
		auth.POST("/pcap/upload", handlePcapUpload)
		auth.GET("/pcap/protocols", handleProtocolCatalog)
		auth.GET("/pcap/interface-protocols", handleInterfaceProtocolCatalog)

		// OUI registry
		auth.POST("/oui/reload", handleOUIReload)

		// Topology
		auth.GET("/asset-connections", handleConnections)
		auth.GET("/asset-connections/network-topology", handleNetworkTopology)
		auth.GET("/asset-connections/statistics", handleConnectionStatistics)
		auth.GET("/assets/:id/hierarchy", handleAssetHierarchy)
	}
}

// sessionScope builds the tenancy scope for a request from its JWT claims.
func sessionScope(c *gin.Context) inventory.Scope {
	return inventory.Scope{
		TenantID: c.GetUint("tenant_id"),
		Username: c.GetString("username"),
	}
}

// uintQuery parses an optional unsigned query parameter; 0 means absent.
func uintQuery(c *gin.Context, name string) uint {
	v, err := strconv.ParseUint(c.Query(name), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

// ── Handlers ─────────────────────────────────────────────────────────────────

// handleLogin accepts username + password and returns a signed JWT.
//
//	POST /api/login
//	Body: { "username": "admin", "password": "admin" }
func handleLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if !checkPassword(body.Username, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := GenerateJWT(body.Username, adminTenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": 86400, // seconds
		"type":       "Bearer",
	})
}

// handleProtocolCatalog returns the industrial protocols the normalizer
// canonicalizes to, for UI display parity with imports.
func handleProtocolCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"protocols":   protocol.IndustrialProtocols(),
		"description": "Industrial protocols recognized during capture import",
	})
}

// handleInterfaceProtocolCatalog returns the protocol options selectable on
// asset interfaces.
func handleInterfaceProtocolCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"protocols":   protocol.InterfaceProtocols(),
		"description": "Protocols selectable on asset interfaces",
	})
}

// handleOUIReload re-reads the OUI registry file.
func handleOUIReload(c *gin.Context) {
	if err := ouiResolver.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded_prefixes": ouiResolver.Len()})
}

// handleConnections lists the tenant's connection rows, optionally filtered
// by site or asset type.
func handleConnections(c *gin.Context) {
	scope := sessionScope(c)
	conns, err := repo.ConnectionsByTenant(scope.TenantID, uintQuery(c, "site_id"), uintQuery(c, "asset_type_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": conns})
}

// handleNetworkTopology returns nodes and edges for the network map.
func handleNetworkTopology(c *gin.Context) {
	scope := sessionScope(c)
	topo, err := topoBuilder.NetworkTopology(scope.TenantID, uintQuery(c, "site_id"), uintQuery(c, "asset_type_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, topo)
}

// handleConnectionStatistics returns connected/isolated asset counts.
func handleConnectionStatistics(c *gin.Context) {
	scope := sessionScope(c)
	stats, err := topoBuilder.Statistics(scope.TenantID, uintQuery(c, "site_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleAssetHierarchy returns the parent/child tree rooted at an asset.
// The traversal is cycle safe: hand-entered connections may loop.
func handleAssetHierarchy(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	tree, err := topoBuilder.AssetHierarchy(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tree == nil || tree.Asset.TenantID != sessionScope(c).TenantID {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	c.JSON(http.StatusOK, tree)
}
