package mbtiles

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/paulmach/orb/maptile"
)

// ErrTileNotFound is returned by ReadTile when the tile does not exist.
var ErrTileNotFound = errors.New("tile not found")

// Reader reads tiles from an MBTiles database.
type Reader struct {
	db   *sql.DB
	path string
}

// OpenReader opens an MBTiles database for reading.
func OpenReader(path string) (*Reader, error) {
	// Open in read-only mode with immutable flag
	db, err := sql.Open("sqlite", path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify schema exists
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table','view') AND name='tiles'").Scan(&count)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify schema: %w", err)
	}
	if count == 0 {
		db.Close()
		return nil, fmt.Errorf("database does not contain tiles table")
	}

	return &Reader{
		db:   db,
		path: path,
	}, nil
}

// ReadTile returns the data of tile t. Gzip-compressed data is decompressed.
// Coordinates are XYZ and converted to TMS internally.
func (r *Reader) ReadTile(t maptile.Tile) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(
		"SELECT tile_data FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=?",
		int(t.Z), int(t.X), tmsRow(t),
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, tileString(t))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tile: %w", err)
	}

	return maybeDecompress(data)
}

// Count returns the number of stored tiles.
func (r *Reader) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM tiles").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tiles: %w", err)
	}
	return n, nil
}

// Tiles calls fn for every stored tile in zoom, column, row order.
// Iteration stops at the first error from fn or when ctx is cancelled.
func (r *Reader) Tiles(ctx context.Context, fn func(maptile.Tile, []byte) error) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT zoom_level, tile_column, tile_row, tile_data FROM tiles ORDER BY zoom_level, tile_column, tile_row")
	if err != nil {
		return fmt.Errorf("failed to query tiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var z, x, row int
		var data []byte
		if err := rows.Scan(&z, &x, &row, &data); err != nil {
			return fmt.Errorf("failed to scan tile row: %w", err)
		}

		t := maptile.New(uint32(x), uint32((1<<uint(z))-1-row), maptile.Zoom(z))
		data, err = maybeDecompress(data)
		if err != nil {
			return fmt.Errorf("tile %s: %w", tileString(t), err)
		}

		if err := fn(t, data); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating tiles: %w", err)
	}
	return nil
}

// TileCoords calls fn with the coordinates of every stored tile without
// loading tile data.
func (r *Reader) TileCoords(ctx context.Context, fn func(maptile.Tile) error) error {
	rows, err := r.db.QueryContext(ctx, "SELECT zoom_level, tile_column, tile_row FROM tiles")
	if err != nil {
		return fmt.Errorf("failed to query tiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var z, x, row int
		if err := rows.Scan(&z, &x, &row); err != nil {
			return fmt.Errorf("failed to scan tile row: %w", err)
		}
		if err := fn(maptile.New(uint32(x), uint32((1<<uint(z))-1-row), maptile.Zoom(z))); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating tiles: %w", err)
	}
	return nil
}

// Metadata reads metadata from the database.
func (r *Reader) Metadata() (Metadata, error) {
	rows, err := r.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	metaMap := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Metadata{}, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		metaMap[name] = value
	}

	if err := rows.Err(); err != nil {
		return Metadata{}, fmt.Errorf("error iterating metadata: %w", err)
	}

	return metadataFromMap(metaMap), nil
}

// Close closes the database connection.
func (r *Reader) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// maybeDecompress gunzips data that starts with the gzip magic number.
func maybeDecompress(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}

	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress tile: %w", err)
	}
	defer gr.Close()

	uncompressed, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress tile: %w", err)
	}

	return uncompressed, nil
}
