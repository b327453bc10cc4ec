// Package topology builds read-only views of the user-modeled Connection
// graph: a node/edge list for the network map and a parent/child tree for
// the hierarchy drill-down. Nothing here mutates the inventory.
package topology

import (
	"fmt"

	"github.com/dmarzo/otmap/internal/inventory"
	"github.com/dmarzo/otmap/internal/models"
)

// Builder reads the connection graph through the inventory repository.
type Builder struct {
	repo inventory.Repository
}

// NewBuilder returns a Builder on the given repository.
func NewBuilder(repo inventory.Repository) *Builder {
	return &Builder{repo: repo}
}

// Node is one asset on the network map.
type Node struct {
	ID           uint   `json:"id"`
	Label        string `json:"label"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// Edge is one connection on the network map.
type Edge struct {
	From     uint   `json:"from"`
	To       uint   `json:"to"`
	Type     string `json:"type"`
	Protocol string `json:"protocol"`
}

// Topology is the network map payload.
type Topology struct {
	Nodes            []Node `json:"nodes"`
	Edges            []Edge `json:"edges"`
	TotalAssets      int    `json:"total_assets"`
	TotalConnections int    `json:"total_connections"`
}

// Statistics summarizes connectivity for the network map header.
type Statistics struct {
	TotalAssets      int64 `json:"total_assets"`
	ConnectedAssets  int   `json:"connected_assets"`
	IsolatedAssets   int64 `json:"isolated_assets"`
	TotalConnections int   `json:"total_connections"`
}

// HierarchyNode is one level of the parent/child tree.
type HierarchyNode struct {
	Asset      *models.Asset    `json:"asset"`
	Connection *HierarchyEdge   `json:"connection,omitempty"`
	Children   []*HierarchyNode `json:"children"`
}

// HierarchyEdge describes the connection that links a child to its parent.
type HierarchyEdge struct {
	Type       string `json:"type"`
	PortParent string `json:"port_parent"`
	PortChild  string `json:"port_child"`
	Protocol   string `json:"protocol"`
}

// NetworkTopology transforms Connection rows into nodes and edges.
// siteID/assetTypeID of 0 mean no filter.
func (b *Builder) NetworkTopology(tenantID, siteID, assetTypeID uint) (*Topology, error) {
	conns, err := b.repo.ConnectionsByTenant(tenantID, siteID, assetTypeID)
	if err != nil {
		return nil, fmt.Errorf("loading connections: %w", err)
	}

	idSet := map[uint]bool{}
	var ids []uint
	for _, c := range conns {
		for _, id := range []uint{c.ParentAssetID, c.ChildAssetID} {
			if id != 0 && !idSet[id] {
				idSet[id] = true
				ids = append(ids, id)
			}
		}
	}

	assets, err := b.repo.AssetsByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("loading assets: %w", err)
	}

	topo := &Topology{Nodes: []Node{}, Edges: []Edge{}}
	for _, a := range assets {
		node := Node{ID: a.ID, Label: a.Name}
		if a.Manufacturer != nil {
			node.Manufacturer = a.Manufacturer.Name
		}
		topo.Nodes = append(topo.Nodes, node)
	}
	for _, c := range conns {
		if c.ParentAssetID == 0 || c.ChildAssetID == 0 {
			continue
		}
		topo.Edges = append(topo.Edges, Edge{
			From:     c.ParentAssetID,
			To:       c.ChildAssetID,
			Type:     c.ConnectionType,
			Protocol: c.Protocol,
		})
	}
	topo.TotalAssets = len(topo.Nodes)
	topo.TotalConnections = len(topo.Edges)
	return topo, nil
}

// Statistics reports connected vs isolated asset counts.
func (b *Builder) Statistics(tenantID, siteID uint) (*Statistics, error) {
	total, err := b.repo.CountAssets(tenantID, siteID)
	if err != nil {
		return nil, fmt.Errorf("counting assets: %w", err)
	}
	conns, err := b.repo.ConnectionsByTenant(tenantID, siteID, 0)
	if err != nil {
		return nil, fmt.Errorf("loading connections: %w", err)
	}

	connected := map[uint]bool{}
	for _, c := range conns {
		if c.ParentAssetID != 0 {
			connected[c.ParentAssetID] = true
		}
		if c.ChildAssetID != 0 {
			connected[c.ChildAssetID] = true
		}
	}

	return &Statistics{
		TotalAssets:      total,
		ConnectedAssets:  len(connected),
		IsolatedAssets:   total - int64(len(connected)),
		TotalConnections: len(conns),
	}, nil
}

// AssetHierarchy descends parent/child connections depth-first from root.
// The connection graph is hand-entered and may contain cycles, so the
// traversal keeps a visited set; a revisited asset yields an empty branch.
func (b *Builder) AssetHierarchy(rootAssetID uint) (*HierarchyNode, error) {
	return b.descend(rootAssetID, nil, map[uint]bool{})
}

func (b *Builder) descend(assetID uint, via *models.Connection, visited map[uint]bool) (*HierarchyNode, error) {
	if visited[assetID] {
		return nil, nil
	}
	visited[assetID] = true

	asset, err := b.repo.AssetByID(assetID)
	if err != nil {
		return nil, fmt.Errorf("loading asset %d: %w", assetID, err)
	}
	if asset == nil {
		return nil, nil
	}

	node := &HierarchyNode{Asset: asset, Children: []*HierarchyNode{}}
	if via != nil {
		node.Connection = &HierarchyEdge{
			Type:       via.ConnectionType,
			PortParent: via.PortParent,
			PortChild:  via.PortChild,
			Protocol:   via.Protocol,
		}
	}

	conns, err := b.repo.ConnectionsByParent(asset.TenantID, assetID)
	if err != nil {
		return nil, fmt.Errorf("loading child connections: %w", err)
	}
	for i := range conns {
		child, err := b.descend(conns[i].ChildAssetID, &conns[i], visited)
		if err != nil {
			return nil, err
		}
		if child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node, nil
}
