package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

// ErrDuplicateLead means the consumer is already saved for that resource.
var ErrDuplicateLead = errors.New("lead already saved")

type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// базовые настройки
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Prepare creates the parent directory, opens the database and ensures the
// schema exists.
func Prepare(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	st, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) EnsureSchema() error {
	const createTable = `
CREATE TABLE IF NOT EXISTS leads (
  id TEXT PRIMARY KEY,
  resource_id TEXT NOT NULL,
  consumer_id TEXT NOT NULL DEFAULT '',
  region TEXT NOT NULL DEFAULT '??',
  tier TEXT NOT NULL,
  sector TEXT NOT NULL DEFAULT '',
  demand_kw REAL NOT NULL,
  latitude REAL NOT NULL,
  longitude REAL NOT NULL,
  municipality_code INTEGER,
  address TEXT NOT NULL DEFAULT '',
  postal_code TEXT NOT NULL DEFAULT '',
  score REAL,
  note TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
`
	if _, err := s.db.Exec(createTable); err != nil {
		return err
	}

	// consumer_id may be blank when the source has no key column; only keyed
	// leads are unique.
	if _, err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_consumer ON leads(resource_id, consumer_id) WHERE consumer_id <> '';`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_leads_region ON leads(region);`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_leads_demand ON leads(demand_kw);`); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) CountLeads() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM leads`).Scan(&n)
	return n, err
}

const insertLead = `
INSERT INTO leads
(id, resource_id, consumer_id, region, tier, sector, demand_kw, latitude, longitude, municipality_code, address, postal_code, score, note, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectLead = `
SELECT id, resource_id, consumer_id, region, tier, sector, demand_kw, latitude, longitude, municipality_code, address, postal_code, score, note, created_at
FROM leads
`

// UpsertMany seeds leads without duplicating by id or consumer key.
func (s *SQLiteStore) UpsertMany(items []domain.Lead) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(strings.Replace(insertLead, "INSERT INTO", "INSERT OR IGNORE INTO", 1))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range items {
		l = withDefaults(l)
		if _, err := stmt.Exec(leadArgs(l)...); err != nil {
			return fmt.Errorf("seed lead %s: %w", l.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) CreateLead(l domain.Lead) (domain.Lead, error) {
	l = withDefaults(l)
	if _, err := s.db.Exec(insertLead, leadArgs(l)...); err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return domain.Lead{}, ErrDuplicateLead
		}
		return domain.Lead{}, err
	}
	return l, nil
}

func (s *SQLiteStore) DeleteLead(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM leads WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	aff, _ := res.RowsAffected()
	return aff > 0, nil
}

func (s *SQLiteStore) GetLead(id string) (domain.Lead, bool, error) {
	l, err := scanLead(s.db.QueryRow(selectLead+"WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return domain.Lead{}, false, nil
	}
	if err != nil {
		return domain.Lead{}, false, err
	}
	return l, true, nil
}

type LeadFilter struct {
	Limit     int
	Offset    int
	Region    string
	Tier      string
	MinDemand float64
	Sort      string // demand_desc | demand_asc | score_desc | created_desc
}

func (s *SQLiteStore) ListLeadsFiltered(f LeadFilter) ([]domain.Lead, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	where := make([]string, 0, 3)
	args := make([]any, 0, 5)

	if strings.TrimSpace(f.Region) != "" {
		where = append(where, "UPPER(region) = UPPER(?)")
		args = append(args, strings.TrimSpace(f.Region))
	}
	if strings.TrimSpace(f.Tier) != "" {
		where = append(where, "UPPER(tier) = UPPER(?)")
		args = append(args, strings.TrimSpace(f.Tier))
	}
	if f.MinDemand > 0 {
		where = append(where, "demand_kw >= ?")
		args = append(args, f.MinDemand)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	orderSQL := "ORDER BY created_at DESC, id"
	switch f.Sort {
	case "demand_asc":
		orderSQL = "ORDER BY demand_kw ASC, id"
	case "demand_desc":
		orderSQL = "ORDER BY demand_kw DESC, id"
	case "score_desc":
		// unscored leads last
		orderSQL = "ORDER BY score IS NULL, score DESC, demand_kw DESC, id"
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM leads "+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rowsArgs := append(append([]any{}, args...), f.Limit, f.Offset)
	rows, err := s.db.Query(selectLead+whereSQL+"\n"+orderSQL+"\nLIMIT ? OFFSET ?", rowsArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]domain.Lead, 0, f.Limit)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func withDefaults(l domain.Lead) domain.Lead {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if l.Region == "" {
		l.Region = "??"
	}
	return l
}

func leadArgs(l domain.Lead) []any {
	var mun sql.NullInt64
	if l.MunicipalityCode != nil {
		mun = sql.NullInt64{Int64: int64(*l.MunicipalityCode), Valid: true}
	}
	var score sql.NullFloat64
	if l.Score != nil {
		score = sql.NullFloat64{Float64: *l.Score, Valid: true}
	}
	return []any{
		l.ID, l.ResourceID, l.ConsumerID, l.Region, string(l.Tier), l.Sector,
		l.DemandKW, l.Latitude, l.Longitude, mun, l.Address, l.PostalCode, score,
		l.Note, l.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(r rowScanner) (domain.Lead, error) {
	var (
		l       domain.Lead
		tier    string
		mun     sql.NullInt64
		score   sql.NullFloat64
		created string
	)
	if err := r.Scan(
		&l.ID, &l.ResourceID, &l.ConsumerID, &l.Region, &tier, &l.Sector,
		&l.DemandKW, &l.Latitude, &l.Longitude, &mun, &l.Address, &l.PostalCode, &score,
		&l.Note, &created,
	); err != nil {
		return domain.Lead{}, err
	}
	l.Tier = domain.Tier(tier)
	if mun.Valid {
		v := int(mun.Int64)
		l.MunicipalityCode = &v
	}
	if score.Valid {
		v := score.Float64
		l.Score = &v
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		l.CreatedAt = t
	}
	return l, nil
}
