package metadata

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ngasd/ngasd/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresGateway implements Gateway on PostgreSQL
type PostgresGateway struct {
	db   DBTX
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool and pings the server
func ConnectPostgres(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema migrations; migrateURL uses the pgx5:// scheme
func Migrate(migrateURL string) (uint, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL)
	if err != nil {
		return 0, fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, nil
}

// NewPostgresGateway wraps an open pool
func NewPostgresGateway(pool *pgxpool.Pool) *PostgresGateway {
	return &PostgresGateway{db: pool, pool: pool}
}

const diskColumns = `disk_id, logical_name, host_id, slot_id, mount_point, mounted, completed,
	available_mb, bytes_stored, number_of_files, total_io_time, installation_date,
	archive_name, manufacturer, disk_type, checksum, last_host_id, completion_date`

func scanDisk(row pgx.Row) (*models.DiskRecord, error) {
	var d models.DiskRecord
	var completion *time.Time
	err := row.Scan(
		&d.DiskID, &d.LogicalName, &d.HostID, &d.SlotID, &d.MountPoint, &d.Mounted, &d.Completed,
		&d.AvailableMB, &d.BytesStored, &d.NumberOfFiles, &d.TotalIOTime, &d.InstallationDate,
		&d.ArchiveName, &d.Manufacturer, &d.DiskType, &d.Checksum, &d.LastHostID, &completion,
	)
	if err != nil {
		return nil, err
	}
	if completion != nil {
		d.CompletionDate = *completion
	}
	return &d, nil
}

func (g *PostgresGateway) queryDisks(ctx context.Context, query string, args ...any) ([]*models.DiskRecord, error) {
	rows, err := g.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query disks: %w", err)
	}
	defer rows.Close()

	disks := make([]*models.DiskRecord, 0)
	for rows.Next() {
		d, err := scanDisk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan disk: %w", err)
		}
		disks = append(disks, d)
	}
	return disks, rows.Err()
}

func (g *PostgresGateway) MountedDiskIDs(ctx context.Context, hostID, rootDir string) ([]string, error) {
	disks, err := g.queryDisks(ctx,
		`SELECT `+diskColumns+` FROM ngas_disks WHERE host_id = $1 AND mounted ORDER BY disk_id`, hostID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(disks))
	for _, d := range disks {
		if underRoot(d.MountPoint, rootDir) {
			ids = append(ids, d.DiskID)
		}
	}
	return ids, nil
}

func (g *PostgresGateway) ReadDisk(ctx context.Context, diskID string) (*models.DiskRecord, error) {
	d, err := scanDisk(g.db.QueryRow(ctx, `SELECT `+diskColumns+` FROM ngas_disks WHERE disk_id = $1`, diskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDiskNotFound, diskID)
		}
		return nil, fmt.Errorf("failed to read disk: %w", err)
	}
	return d, nil
}

// WriteDisk upserts the record; xmax = 0 identifies a freshly inserted row
func (g *PostgresGateway) WriteDisk(ctx context.Context, disk *models.DiskRecord) (bool, error) {
	if disk == nil || disk.DiskID == "" {
		return false, fmt.Errorf("disk id is required")
	}

	var completion *time.Time
	if !disk.CompletionDate.IsZero() {
		completion = &disk.CompletionDate
	}

	query := `
		INSERT INTO ngas_disks (` + diskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (disk_id) DO UPDATE SET
			logical_name = EXCLUDED.logical_name,
			host_id = EXCLUDED.host_id,
			slot_id = EXCLUDED.slot_id,
			mount_point = EXCLUDED.mount_point,
			mounted = EXCLUDED.mounted,
			completed = EXCLUDED.completed,
			available_mb = EXCLUDED.available_mb,
			bytes_stored = EXCLUDED.bytes_stored,
			number_of_files = EXCLUDED.number_of_files,
			total_io_time = EXCLUDED.total_io_time,
			installation_date = EXCLUDED.installation_date,
			archive_name = EXCLUDED.archive_name,
			manufacturer = EXCLUDED.manufacturer,
			disk_type = EXCLUDED.disk_type,
			checksum = EXCLUDED.checksum,
			last_host_id = EXCLUDED.last_host_id,
			completion_date = EXCLUDED.completion_date
		RETURNING (xmax = 0)`

	var inserted bool
	err := g.db.QueryRow(ctx, query,
		disk.DiskID, disk.LogicalName, disk.HostID, disk.SlotID, disk.MountPoint, disk.Mounted, disk.Completed,
		disk.AvailableMB, disk.BytesStored, disk.NumberOfFiles, disk.TotalIOTime, disk.InstallationDate,
		disk.ArchiveName, disk.Manufacturer, disk.DiskType, disk.Checksum, disk.LastHostID, completion,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to write disk: %w", err)
	}
	return inserted, nil
}

func (g *PostgresGateway) DiskExists(ctx context.Context, diskID string) (bool, error) {
	var exists bool
	err := g.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ngas_disks WHERE disk_id = $1)`, diskID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check disk existence: %w", err)
	}
	return exists, nil
}

func (g *PostgresGateway) ListDisks(ctx context.Context) ([]*models.DiskRecord, error) {
	return g.queryDisks(ctx, `SELECT `+diskColumns+` FROM ngas_disks ORDER BY disk_id`)
}

func (g *PostgresGateway) SumBytesStored(ctx context.Context, diskID string) (int64, error) {
	var sum int64
	err := g.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(file_size), 0) FROM ngas_files WHERE disk_id = $1 AND NOT ignore`, diskID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum bytes stored: %w", err)
	}
	return sum, nil
}

func (g *PostgresGateway) CountFiles(ctx context.Context, diskID string) (int64, error) {
	var n int64
	err := g.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM ngas_files WHERE disk_id = $1 AND NOT ignore`, diskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

func (g *PostgresGateway) MaxDiskSequenceNumber(ctx context.Context) (int, bool, error) {
	rows, err := g.db.Query(ctx, `SELECT logical_name FROM ngas_disks`)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query logical names: %w", err)
	}
	defer rows.Close()

	max, found := 0, false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, false, fmt.Errorf("failed to scan logical name: %w", err)
		}
		if n, ok := SequenceNumber(name); ok && (!found || n > max) {
			max, found = n, true
		}
	}
	return max, found, rows.Err()
}

func (g *PostgresGateway) DiskIDForSlot(ctx context.Context, hostID, slotID string) (string, bool, error) {
	var id string
	err := g.db.QueryRow(ctx,
		`SELECT disk_id FROM ngas_disks WHERE host_id = $1 AND slot_id = $2 ORDER BY disk_id LIMIT 1`,
		hostID, slotID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to find disk for slot: %w", err)
	}
	return id, true, nil
}

func (g *PostgresGateway) LogicalNameForDisk(ctx context.Context, diskID string) (string, error) {
	var name string
	err := g.db.QueryRow(ctx, `SELECT logical_name FROM ngas_disks WHERE disk_id = $1`, diskID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrDiskNotFound, diskID)
		}
		return "", fmt.Errorf("failed to get logical name: %w", err)
	}
	return name, nil
}

func (g *PostgresGateway) DiskInfoForSlots(ctx context.Context, hostID string, slotIDs []string) ([]*models.DiskRecord, error) {
	return g.queryDisks(ctx,
		`SELECT `+diskColumns+` FROM ngas_disks WHERE host_id = $1 AND slot_id = ANY($2) ORDER BY slot_id, disk_id`,
		hostID, slotIDs)
}

func (g *PostgresGateway) BestTargetDisk(ctx context.Context, candidates []string, rootDir string) (string, bool, error) {
	if len(candidates) == 0 {
		return "", false, nil
	}
	disks, err := g.queryDisks(ctx,
		`SELECT `+diskColumns+` FROM ngas_disks WHERE disk_id = ANY($1)`, candidates)
	if err != nil {
		return "", false, err
	}
	id, ok := bestOf(disks, rootDir)
	return id, ok, nil
}

func (g *PostgresGateway) AddDiskHistoryEntry(ctx context.Context, entry models.DiskHistoryEntry) error {
	if entry.Date.IsZero() {
		entry.Date = time.Now()
	}
	_, err := g.db.Exec(ctx, `
		INSERT INTO ngas_disks_hist (disk_id, host_id, hist_date, synopsis, content_type, content)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.DiskID, entry.HostID, entry.Date, entry.Synopsis, entry.ContentType, entry.Content)
	if err != nil {
		return fmt.Errorf("failed to add disk history entry: %w", err)
	}
	return nil
}

// DiskHistory returns the history of a disk in chronological order
func (g *PostgresGateway) DiskHistory(ctx context.Context, diskID string) ([]models.DiskHistoryEntry, error) {
	rows, err := g.db.Query(ctx, `
		SELECT disk_id, host_id, hist_date, synopsis, content_type, content
		FROM ngas_disks_hist WHERE disk_id = $1 ORDER BY hist_date, id`, diskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query disk history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.DiskHistoryEntry, 0)
	for rows.Next() {
		var e models.DiskHistoryEntry
		if err := rows.Scan(&e.DiskID, &e.HostID, &e.Date, &e.Synopsis, &e.ContentType, &e.Content); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (g *PostgresGateway) RegisterFile(ctx context.Context, file *models.FileRecord) error {
	if file == nil || file.DiskID == "" || file.FileID == "" {
		return fmt.Errorf("disk id and file id are required")
	}
	ingested := file.IngestionDate
	if ingested.IsZero() {
		ingested = time.Now()
	}

	_, err := g.db.Exec(ctx, `
		INSERT INTO ngas_files (disk_id, file_id, file_version, file_name, file_size, mime_type, ingestion_date, ignore)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (disk_id, file_id, file_version) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			file_size = EXCLUDED.file_size,
			mime_type = EXCLUDED.mime_type,
			ignore = EXCLUDED.ignore`,
		file.DiskID, file.FileID, file.FileVersion, file.FileName, file.FileSize, file.MimeType, ingested, file.Ignore)
	if err != nil {
		return fmt.Errorf("failed to register file: %w", err)
	}
	return nil
}

func (g *PostgresGateway) Close() error {
	if g.pool != nil {
		g.pool.Close()
	}
	return nil
}
