package rule

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists rules in the business_rules table (see migrations/).
// Trigger, conditions, actions, and metadata are stored as JSONB.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// "trigger" is a reserved word in Postgres, hence the quoting.
const ruleColumns = `id, tenant_id, name, description, "trigger", conditions, actions, priority, is_active, created_at, updated_at, metadata`

func (s *PostgresStore) Add(r *Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM business_rules WHERE id = $1 AND tenant_id = $2)
	`, r.ID, r.TenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule %s already exists", r.ID)
	}

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	trigger, conditions, actions, metadata, err := marshalRule(r)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO business_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.ID, r.TenantID, r.Name, r.Description, trigger, conditions, actions,
		r.Priority, r.Active, r.CreatedAt, r.UpdatedAt, metadata)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(tenantID, id string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT `+ruleColumns+` FROM business_rules
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Update(r *Rule) error {
	r.UpdatedAt = time.Now()
	trigger, conditions, actions, _, err := marshalRule(r)
	if err != nil {
		return err
	}
	// Metadata is deliberately not part of the CRUD update.
	res, err := s.db.Exec(`
		UPDATE business_rules
		SET name = $3, description = $4, "trigger" = $5, conditions = $6,
		    actions = $7, priority = $8, is_active = $9, updated_at = $10
		WHERE id = $1 AND tenant_id = $2
	`, r.ID, r.TenantID, r.Name, r.Description, trigger, conditions, actions,
		r.Priority, r.Active, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	return nil
}

func (s *PostgresStore) Delete(tenantID, id string) error {
	res, err := s.db.Exec(`
		DELETE FROM business_rules WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) List(tenantID string) ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT `+ruleColumns+` FROM business_rules
		WHERE tenant_id = $1
		ORDER BY priority ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

func (s *PostgresStore) ListAll() ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT ` + ruleColumns + ` FROM business_rules
		ORDER BY tenant_id ASC, priority ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

func (s *PostgresStore) ApplyMetadata(tenantID, id string, apply func(*Metadata)) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("apply metadata: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRow(`
		SELECT metadata FROM business_rules
		WHERE id = $1 AND tenant_id = $2 FOR UPDATE
	`, id, tenantID).Scan(&raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("apply metadata: %w", err)
	}

	var meta Metadata
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("apply metadata: decode: %w", err)
		}
	}
	apply(&meta)

	updated, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("apply metadata: encode: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE business_rules SET metadata = $3 WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, updated); err != nil {
		return fmt.Errorf("apply metadata: %w", err)
	}
	return tx.Commit()
}

func marshalRule(r *Rule) (trigger, conditions, actions, metadata []byte, err error) {
	if trigger, err = json.Marshal(r.Trigger); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode trigger: %w", err)
	}
	if conditions, err = json.Marshal(r.Conditions); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode conditions: %w", err)
	}
	if actions, err = json.Marshal(r.Actions); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode actions: %w", err)
	}
	if metadata, err = json.Marshal(r.Metadata); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	return trigger, conditions, actions, metadata, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var r Rule
	var trigger, conditions, actions, metadata []byte
	err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.Description,
		&trigger, &conditions, &actions,
		&r.Priority, &r.Active, &r.CreatedAt, &r.UpdatedAt, &metadata)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(trigger, &r.Trigger); err != nil {
		return nil, fmt.Errorf("decode trigger: %w", err)
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions: %w", err)
		}
	}
	if err := json.Unmarshal(actions, &r.Actions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &r, nil
}

func collectRules(rows *sql.Rows) ([]*Rule, error) {
	var out []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
