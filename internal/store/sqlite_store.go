package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/benmeehan/action-verifier/internal/constants"
	"github.com/benmeehan/action-verifier/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps devices and commands in a local SQLite file.
type SQLiteStore struct {
	dbConn *sqlx.DB
}

type dbDevice struct {
	ID           string `db:"id"`
	UserID       string `db:"user_id"`
	Status       string `db:"status"`
	AgentVersion string `db:"agent_version"`
	LastSeen     int64  `db:"last_seen"`
}

type dbCommand struct {
	ID        string  `db:"id"`
	DeviceID  string  `db:"device_id"`
	UserID    string  `db:"user_id"`
	Type      string  `db:"type"`
	Status    string  `db:"status"`
	Options   JSONMap `db:"options"`
	Result    JSONMap `db:"result"`
	Error     string  `db:"error"`
	CreatedAt int64   `db:"created_at"`
	UpdatedAt int64   `db:"updated_at"`
}

func toDomainDevice(d dbDevice) models.Device {
	return models.Device{
		ID:           d.ID,
		UserID:       d.UserID,
		Status:       d.Status,
		AgentVersion: d.AgentVersion,
		LastSeen:     time.Unix(0, d.LastSeen).UTC(),
	}
}

func toDomainCommand(c dbCommand) models.Command {
	return models.Command{
		ID:        c.ID,
		DeviceID:  c.DeviceID,
		UserID:    c.UserID,
		Type:      c.Type,
		Status:    c.Status,
		Options:   c.Options,
		Result:    c.Result,
		Error:     c.Error,
		CreatedAt: time.Unix(0, c.CreatedAt).UTC(),
		UpdatedAt: time.Unix(0, c.UpdatedAt).UTC(),
	}
}

// NewSQLiteStore opens the database at path and applies pending migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("connecting to db: %w", err)
	}

	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting dialect for migrations: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return &SQLiteStore{dbConn: db}, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.dbConn.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertDevice(ctx context.Context, device models.Device) error {
	if device.ID == "" || device.UserID == "" {
		return fmt.Errorf("device id and user id are required")
	}
	lastSeen := device.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now()
	}

	query := `INSERT INTO devices (id, user_id, status, agent_version, last_seen)
		VALUES (:id, :user_id, :status, :agent_version, :last_seen)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			agent_version = excluded.agent_version,
			last_seen = excluded.last_seen
		WHERE devices.user_id = excluded.user_id AND devices.last_seen <= excluded.last_seen`

	res, err := s.dbConn.NamedExecContext(ctx, query, dbDevice{
		ID:           device.ID,
		UserID:       device.UserID,
		Status:       device.Status,
		AgentVersion: device.AgentVersion,
		LastSeen:     lastSeen.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", device.ID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	// The conflict update was skipped: find out which guard refused it.
	var owner string
	if err := s.dbConn.GetContext(ctx, &owner, `SELECT user_id FROM devices WHERE id = ?`, device.ID); err != nil {
		return fmt.Errorf("getting device %s: %w", device.ID, err)
	}
	if owner != device.UserID {
		return fmt.Errorf("device %s: %w", device.ID, ErrDeviceOwnership)
	}
	return fmt.Errorf("device %s: %w", device.ID, ErrStaleDevice)
}

func (s *SQLiteStore) OnlineDevices(ctx context.Context, userID string) ([]models.Device, error) {
	var rows []dbDevice
	query := `SELECT id, user_id, status, agent_version, last_seen FROM devices
		WHERE user_id = ? AND status = ? ORDER BY last_seen DESC`

	if err := s.dbConn.SelectContext(ctx, &rows, query, userID, constants.DeviceStatusOnline); err != nil {
		return nil, fmt.Errorf("getting online devices: %w", err)
	}

	devices := make([]models.Device, len(rows))
	for i, row := range rows {
		devices[i] = toDomainDevice(row)
	}
	return devices, nil
}

func (s *SQLiteStore) InsertCommand(ctx context.Context, cmd *models.Command) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cmd.Status = constants.CommandStatusPending
	cmd.CreatedAt = now
	cmd.UpdatedAt = now

	query := `INSERT INTO commands (id, device_id, user_id, type, status, options, result, error, created_at, updated_at)
		VALUES (:id, :device_id, :user_id, :type, :status, :options, :result, :error, :created_at, :updated_at)`

	_, err := s.dbConn.NamedExecContext(ctx, query, dbCommand{
		ID:        cmd.ID,
		DeviceID:  cmd.DeviceID,
		UserID:    cmd.UserID,
		Type:      cmd.Type,
		Status:    cmd.Status,
		Options:   cmd.Options,
		Result:    cmd.Result,
		Error:     cmd.Error,
		CreatedAt: now.UnixNano(),
		UpdatedAt: now.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("inserting command %s: %w", cmd.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetCommand(ctx context.Context, id string) (models.Command, error) {
	var row dbCommand
	query := `SELECT id, device_id, user_id, type, status, options, result, error, created_at, updated_at
		FROM commands WHERE id = ?`

	if err := s.dbConn.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Command{}, fmt.Errorf("command %s: %w", id, ErrNotFound)
		}
		return models.Command{}, fmt.Errorf("getting command %s: %w", id, err)
	}
	return toDomainCommand(row), nil
}

func (s *SQLiteStore) CompleteCommand(ctx context.Context, id, status string, result map[string]any, errMsg string) error {
	if !IsTerminal(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	query := `UPDATE commands SET status = ?, result = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	res, err := s.dbConn.ExecContext(ctx, query, status, JSONMap(result), errMsg, time.Now().UnixNano(),
		id, constants.CommandStatusPending)
	if err != nil {
		return fmt.Errorf("completing command %s: %w", id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	// Nothing updated: either unknown or already terminal.
	if _, err := s.GetCommand(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("command %s: %w", id, ErrCommandTerminal)
}
