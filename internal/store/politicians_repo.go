package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aristath/finintel/internal/domain"
)

// PoliticiansRepo manages canonical politician, committee, and
// committee-assignment records used to resolve congressional trade
// disclosures to a stable identity (spec §4.6).
type PoliticiansRepo struct {
	db *sql.DB
}

// NewPoliticiansRepo constructs a PoliticiansRepo over the MetaStore connection.
func NewPoliticiansRepo(ms *MetaStore) *PoliticiansRepo { return &PoliticiansRepo{db: ms.Conn()} }

// Upsert inserts or updates a politician record by id.
func (r *PoliticiansRepo) Upsert(p *domain.Politician) error {
	aliasesJSON, err := json.Marshal(p.Aliases)
	if err != nil {
		return fmt.Errorf("failed to marshal aliases: %w", err)
	}
	_, err = r.db.Exec(`
		INSERT INTO politicians (id, canonical_name, aliases, party, state, chamber, is_leadership)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			canonical_name = excluded.canonical_name,
			aliases = excluded.aliases,
			party = excluded.party,
			state = excluded.state,
			chamber = excluded.chamber,
			is_leadership = excluded.is_leadership`,
		p.ID, p.CanonicalName, string(aliasesJSON), p.Party, p.State, string(p.Chamber), boolToInt(p.IsLeadership))
	if err != nil {
		return fmt.Errorf("failed to upsert politician: %w", err)
	}
	return nil
}

// FindByNameOrAlias resolves a disclosure's raw name string to a canonical
// politician record, matching either the canonical name or a stored alias.
func (r *PoliticiansRepo) FindByNameOrAlias(name string) (*domain.Politician, error) {
	rows, err := r.db.Query(`SELECT id, canonical_name, aliases, party, state, chamber, is_leadership FROM politicians`)
	if err != nil {
		return nil, fmt.Errorf("failed to query politicians: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, aliasesJSON, err := scanPolitician(rows)
		if err != nil {
			return nil, err
		}
		if p.CanonicalName == name {
			return p, nil
		}
		var aliases []string
		_ = json.Unmarshal([]byte(aliasesJSON), &aliases)
		for _, a := range aliases {
			if a == name {
				p.Aliases = aliases
				return p, nil
			}
		}
	}
	return nil, rows.Err()
}

// ByID loads a politician by its canonical id.
func (r *PoliticiansRepo) ByID(id string) (*domain.Politician, error) {
	rows, err := r.db.Query(`SELECT id, canonical_name, aliases, party, state, chamber, is_leadership FROM politicians WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query politician by id: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		p, aliasesJSON, err := scanPolitician(rows)
		if err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(aliasesJSON), &p.Aliases)
		return p, nil
	}
	return nil, rows.Err()
}

func scanPolitician(rows *sql.Rows) (*domain.Politician, string, error) {
	p := &domain.Politician{}
	var aliasesJSON string
	var isLeadership int
	if err := rows.Scan(&p.ID, &p.CanonicalName, &aliasesJSON, &p.Party, &p.State, &p.Chamber, &isLeadership); err != nil {
		return nil, "", fmt.Errorf("failed to scan politician: %w", err)
	}
	_ = json.Unmarshal([]byte(aliasesJSON), &p.Aliases)
	p.IsLeadership = isLeadership != 0
	return p, aliasesJSON, nil
}

// CommitteesForPolitician returns the committees a politician sits on, used
// by the analyzer to detect committee-oversight conflicts (spec §4.6).
func (r *PoliticiansRepo) CommitteesForPolitician(politicianID string) ([]*domain.Committee, error) {
	rows, err := r.db.Query(`
		SELECT c.id, c.name, c.target_sectors
		FROM committees c
		JOIN committee_assignments ca ON ca.committee_id = c.id
		WHERE ca.politician_id = ?`, politicianID)
	if err != nil {
		return nil, fmt.Errorf("failed to query committees for politician: %w", err)
	}
	defer rows.Close()

	var out []*domain.Committee
	for rows.Next() {
		c := &domain.Committee{}
		var sectorsJSON string
		if err := rows.Scan(&c.ID, &c.Name, &sectorsJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(sectorsJSON), &c.TargetSectors)
		out = append(out, c)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
