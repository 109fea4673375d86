package resume

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" driver
)

// DBStore persists pause tokens in Postgres, for deployments that already
// run the engine as a service and want resume checkpoints alongside other
// operational state rather than scattered across local files. Adapted from
// the teacher's pkg/state.DBStateManager: same sql.Open/Ping/SetMaxOpenConns
// bring-up, same upsert-on-conflict schema pattern, narrowed to the four
// token fields instead of a full migration-task row.
type DBStore struct {
	db *sql.DB
}

// NewDBStore opens a Postgres connection and ensures the checkpoint table
// exists.
func NewDBStore(connectionString string) (*DBStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("resume: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("resume: ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &DBStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *DBStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS upload_checkpoints (
		key VARCHAR(1024) PRIMARY KEY,
		upload_type VARCHAR(64) NOT NULL,
		multipart_upload_id VARCHAR(255) NOT NULL,
		partition_size BIGINT NOT NULL,
		total_num_parts INTEGER NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("resume: init schema: %w", err)
	}
	return nil
}

// Save upserts the checkpoint row for key.
func (s *DBStore) Save(key string, t Token) error {
	if err := t.Validate(); err != nil {
		return err
	}
	const query = `
		INSERT INTO upload_checkpoints (key, upload_type, multipart_upload_id, partition_size, total_num_parts, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			upload_type = EXCLUDED.upload_type,
			multipart_upload_id = EXCLUDED.multipart_upload_id,
			partition_size = EXCLUDED.partition_size,
			total_num_parts = EXCLUDED.total_num_parts,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.Exec(query, key, t.Type, t.MultipartUploadID, t.PartitionSize, t.TotalNumParts, time.Now())
	if err != nil {
		return fmt.Errorf("resume: save checkpoint for %s: %w", key, err)
	}
	return nil
}

// Load reads back the checkpoint row for key.
func (s *DBStore) Load(key string) (Token, error) {
	const query = `
		SELECT upload_type, multipart_upload_id, partition_size, total_num_parts
		FROM upload_checkpoints WHERE key = $1
	`
	var t Token
	err := s.db.QueryRow(query, key).Scan(&t.Type, &t.MultipartUploadID, &t.PartitionSize, &t.TotalNumParts)
	if err != nil {
		return Token{}, fmt.Errorf("resume: load checkpoint for %s: %w", key, err)
	}
	return t, t.Validate()
}

// Delete removes the checkpoint row for key.
func (s *DBStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM upload_checkpoints WHERE key = $1`, key); err != nil {
		return fmt.Errorf("resume: delete checkpoint for %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying database connection pool.
func (s *DBStore) Close() error {
	return s.db.Close()
}
