package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/sadp-fleet/internal/infrastructure/database"
)

// Repository persists registry snapshots and the discovery event trail.
type Repository interface {
	// SaveSnapshot replaces the stored inventory with records.
	SaveSnapshot(ctx context.Context, records []Record) error

	// ListSnapshot returns the stored inventory, oldest sighting first.
	ListSnapshot(ctx context.Context) ([]Record, error)

	// AppendEvent records one discovery event.
	AppendEvent(ctx context.Context, rec Record) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The schema must already be migrated.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const timeLayout = time.RFC3339Nano

// SaveSnapshot replaces the devices table in a single transaction.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, records []Record) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM devices`); err != nil {
			return fmt.Errorf("clearing devices: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO devices (
				mac, serial, ipv4_address, ipv4_mask, ipv4_gateway,
				ipv6_address, ipv6_gateway, ipv6_prefix_len,
				activated, dhcp_enabled, port, http_port, last_event,
				model, firmware_version, details, seen_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing device insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			details, err := json.Marshal(rec.Details)
			if err != nil {
				return fmt.Errorf("marshalling details for %s: %w", rec.HardwareAddress, err)
			}
			_, err = stmt.ExecContext(ctx,
				rec.HardwareAddress, rec.SerialNumber,
				rec.IPv4Address, rec.IPv4SubnetMask, rec.IPv4Gateway,
				rec.IPv6Address, rec.IPv6Gateway, int(rec.IPv6PrefixLen),
				boolToInt(rec.Activated), boolToInt(rec.DHCPEnabled),
				int(rec.Port), int(rec.HTTPPort), int(rec.LastEvent),
				rec.Details.Model, rec.Details.FirmwareVersion, string(details),
				rec.SeenAt.UTC().Format(timeLayout),
			)
			if err != nil {
				return fmt.Errorf("inserting device %s: %w", rec.HardwareAddress, err)
			}
		}
		return nil
	})
}

// ListSnapshot returns the stored inventory ordered by sighting time.
func (r *SQLiteRepository) ListSnapshot(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mac, serial, ipv4_address, ipv4_mask, ipv4_gateway,
			ipv6_address, ipv6_gateway, ipv6_prefix_len,
			activated, dhcp_enabled, port, http_port, last_event,
			details, seen_at
		FROM devices
		ORDER BY seen_at, mac`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                        Record
			prefixLen, port, httpPort  int
			activated, dhcp, lastEvent int
			details, seenAt            string
		)
		err := rows.Scan(
			&rec.HardwareAddress, &rec.SerialNumber,
			&rec.IPv4Address, &rec.IPv4SubnetMask, &rec.IPv4Gateway,
			&rec.IPv6Address, &rec.IPv6Gateway, &prefixLen,
			&activated, &dhcp, &port, &httpPort, &lastEvent,
			&details, &seenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		rec.IPv6PrefixLen = uint8(prefixLen)
		rec.Activated = activated != 0
		rec.DHCPEnabled = dhcp != 0
		rec.Port = uint16(port)
		rec.HTTPPort = uint16(httpPort)
		rec.LastEvent = EventKind(lastEvent)

		if err := json.Unmarshal([]byte(details), &rec.Details); err != nil {
			return nil, fmt.Errorf("unmarshalling details for %s: %w", rec.HardwareAddress, err)
		}
		if rec.SeenAt, err = time.Parse(timeLayout, seenAt); err != nil {
			return nil, fmt.Errorf("parsing seen_at for %s: %w", rec.HardwareAddress, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return records, nil
}

// AppendEvent adds one row to the device_events trail.
func (r *SQLiteRepository) AppendEvent(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_events (mac, kind, ipv4_address, activated, observed_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.HardwareAddress, int(rec.LastEvent), rec.IPv4Address,
		boolToInt(rec.Activated), rec.SeenAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("appending event for %s: %w", rec.HardwareAddress, err)
	}
	return nil
}

// EventCount returns the number of stored events for mac.
func (r *SQLiteRepository) EventCount(ctx context.Context, mac string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM device_events WHERE mac = ?`, mac).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting events for %s: %w", mac, err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
