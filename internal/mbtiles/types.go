// Package mbtiles reads and writes MBTiles databases so raster tilesets can be sharpened in bulk.
package mbtiles

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Metadata contains MBTiles metadata fields.
type Metadata struct {
	Name        string    // Human-readable tileset identifier
	Format      string    // Tile data type (png, jpg, webp, pbf)
	Attribution string    // Attribution text
	Description string    // Human-readable description
	Type        string    // "baselayer" or "overlay"
	Version     string    // Version string
	Bounds      orb.Bound // WGS84 extent; zero means unset
	Center      orb.Point // lon, lat
	CenterZoom  int
	MinZoom     int // Minimum zoom level
	MaxZoom     int // Maximum zoom level
	Extra       map[string]string
}

// ToMap converts Metadata to a map for database insertion.
func (m Metadata) ToMap() map[string]string {
	result := make(map[string]string)

	for k, v := range m.Extra {
		result[k] = v
	}

	if m.Name != "" {
		result["name"] = m.Name
	}
	if m.Format != "" {
		result["format"] = m.Format
	}
	if m.MinZoom > 0 {
		result["minzoom"] = strconv.Itoa(m.MinZoom)
	}
	if m.MaxZoom > 0 {
		result["maxzoom"] = strconv.Itoa(m.MaxZoom)
	}
	if !m.Bounds.IsZero() {
		result["bounds"] = strconv.FormatFloat(m.Bounds.Left(), 'f', 6, 64) + "," +
			strconv.FormatFloat(m.Bounds.Bottom(), 'f', 6, 64) + "," +
			strconv.FormatFloat(m.Bounds.Right(), 'f', 6, 64) + "," +
			strconv.FormatFloat(m.Bounds.Top(), 'f', 6, 64)
	}
	if m.Center != (orb.Point{}) || m.CenterZoom != 0 {
		result["center"] = strconv.FormatFloat(m.Center.Lon(), 'f', 6, 64) + "," +
			strconv.FormatFloat(m.Center.Lat(), 'f', 6, 64) + "," +
			strconv.Itoa(m.CenterZoom)
	}
	if m.Attribution != "" {
		result["attribution"] = m.Attribution
	}
	if m.Description != "" {
		result["description"] = m.Description
	}
	if m.Type != "" {
		result["type"] = m.Type
	}
	if m.Version != "" {
		result["version"] = m.Version
	}

	return result
}

// knownKeys are the metadata rows mapped onto struct fields.
var knownKeys = map[string]bool{
	"name": true, "format": true, "minzoom": true, "maxzoom": true, "bounds": true,
	"center": true, "attribution": true, "description": true, "type": true, "version": true,
}

// metadataFromMap parses metadata rows. Unknown keys are kept in Extra;
// malformed numeric values are ignored.
func metadataFromMap(rows map[string]string) Metadata {
	meta := Metadata{
		Name:        rows["name"],
		Format:      rows["format"],
		Attribution: rows["attribution"],
		Description: rows["description"],
		Type:        rows["type"],
		Version:     rows["version"],
	}

	if v, ok := rows["minzoom"]; ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			meta.MinZoom = i
		}
	}
	if v, ok := rows["maxzoom"]; ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			meta.MaxZoom = i
		}
	}

	// bounds: "minLon,minLat,maxLon,maxLat"
	if f, ok := parseFloats(rows["bounds"], 4); ok {
		meta.Bounds = orb.Bound{Min: orb.Point{f[0], f[1]}, Max: orb.Point{f[2], f[3]}}
	}

	// center: "lon,lat,zoom"
	if f, ok := parseFloats(rows["center"], 3); ok {
		meta.Center = orb.Point{f[0], f[1]}
		meta.CenterZoom = int(f[2])
	}

	for k, v := range rows {
		if knownKeys[k] {
			continue
		}
		if meta.Extra == nil {
			meta.Extra = make(map[string]string)
		}
		meta.Extra[k] = v
	}

	return meta
}

func parseFloats(s string, n int) ([]float64, bool) {
	if s == "" {
		return nil, false
	}
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, false
	}
	out := make([]float64, n)
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
