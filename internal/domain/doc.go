// Package domain models HUC8 watershed boundaries and the lookup that
// resolves a free-text US address to one of them.
//
// # Data Sources
//
// Geocoding uses an OpenStreetMap Nominatim search endpoint. Nominatim's usage
// policy allows roughly one request per second per application and requires an
// identifying User-Agent, so every geocode goes through a [ratelimit.Limiter]
// configured with a 1100ms minimum spacing.
//
// Boundaries come from the USGS Watershed Boundary Dataset (WBD) published as
// an ArcGIS MapServer layer. The HUC8 layer is queried through its ESRI REST
// "query" operation with f=geojson, which returns a GeoJSON FeatureCollection.
//
// # HUC8 Conventions
//
// Hydrologic Unit Codes are hierarchical: two digits per level, eight digits
// for a subbasin ("02070010" = Middle Potomac-Anacostia-Occoquan). The code is
// the identity key of a [BoundaryFeature].
//
// Provider properties:
//
//	huc8       8-digit code, string
//	name       subbasin name
//	states     comma-joined postal codes, e.g. "DC,MD,VA"
//	areaacres  area in acres, number or null
//	areasqkm   area in square kilometers, number or null
//
// # Coordinates
//
// All geometry is WGS84 (EPSG:4326) in [longitude, latitude] order, matching
// GeoJSON and orb. The ESRI point encoding is {"x": lng, "y": lat}.
//
// # Adjacency
//
// Neighbors are found with esriSpatialRelIntersects rather than
// esriSpatialRelTouches because WBD polygons are not perfectly snapped to one
// another. Intersects also returns the source polygon itself, which is removed
// by code.
package domain
