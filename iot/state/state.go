// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package state keeps the last decoded event of every device and event name in postgres
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/csql"
	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/iot"
)

// ErrNotFound is returned by Read if no event was recorded yet
var ErrNotFound = errors.New("no such event")

// Entry is the last event of a device with a given event name
type Entry struct {
	DeviceType string      `json:"device_type"`
	DeviceID   string      `json:"device_id"`
	Event      string      `json:"event"`
	Format     string      `json:"format"`
	Data       codec.Value `json:"data"`
	ReceivedAt time.Time   `json:"received_at"`
}

// Store persists the last event per device and event name
type Store struct {
	db *csql.DB
}

var _ iot.EventWriter = (*Store)(nil)

// Open connects to postgres and creates the sql relations of the store in schema if
// they do not exist
func Open(ctx context.Context, dataSourceName, schema string) (*Store, error) {
	db, err := csql.OpenWithSchema(ctx, dataSourceName, schema)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.createTableIfNotExists(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTableIfNotExists(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`CREATE table IF NOT EXISTS `+s.db.Schema+`."_last_event_"
(device_type varchar NOT NULL,
device_id varchar NOT NULL,
event varchar NOT NULL,
format varchar NOT NULL,
data json NOT NULL,
received_at timestamp NOT NULL,
PRIMARY KEY(device_type, device_id, event)
);`)
	if err != nil {
		return fmt.Errorf("cannot create _last_event_ table: %w", err)
	}
	return nil
}

// Write records e as the last event of its device and event name. Older events do not
// replace newer ones.
func (s *Store) Write(ctx context.Context, e *iot.Event) error {
	data, err := e.Data.MarshalJSON()
	if err != nil {
		return err
	}
	receivedAt := e.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+s.db.Schema+`."_last_event_"(device_type,device_id,event,format,data,received_at)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (device_type, device_id, event) DO UPDATE
SET format=$4, data=$5, received_at=$6
WHERE "_last_event_".received_at <= $6;`,
		e.DeviceType, e.DeviceID, e.Event, e.Format, string(data), receivedAt.UTC())
	if err != nil {
		return fmt.Errorf("cannot write event %s: %w", e.Topic, err)
	}
	logger.FromContext(ctx).Debugln("recorded", e.Topic)
	return nil
}

// Read returns the last event with the given name of a device
func (s *Store) Read(ctx context.Context, deviceType, deviceID, event string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT device_type,device_id,event,format,data,received_at FROM `+s.db.Schema+`."_last_event_"
WHERE device_type=$1 AND device_id=$2 AND event=$3;`,
		deviceType, deviceID, event)
	entry, err := scanEntry(row)
	if errors.Is(err, csql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// List returns the last events of a device ordered by event name
func (s *Store) List(ctx context.Context, deviceType, deviceID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_type,device_id,event,format,data,received_at FROM `+s.db.Schema+`."_last_event_"
WHERE device_type=$1 AND device_id=$2 ORDER BY event;`,
		deviceType, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Clear removes all recorded events
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+s.db.Schema+`."_last_event_";`)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		entry Entry
		data  []byte
	)
	if err := row.Scan(&entry.DeviceType, &entry.DeviceID, &entry.Event, &entry.Format, &data, &entry.ReceivedAt); err != nil {
		return nil, err
	}
	if err := entry.Data.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("corrupt data of %s/%s/%s: %w", entry.DeviceType, entry.DeviceID, entry.Event, err)
	}
	entry.ReceivedAt = entry.ReceivedAt.UTC()
	return &entry, nil
}
