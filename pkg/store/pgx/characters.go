package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
)

const findCharacterSQL = `
SELECT id, book_id, profile
FROM characters
WHERE book_id = $1 AND $2 = ANY(name_keys)
ORDER BY id
LIMIT 1;
`

const createCharacterSQL = `
INSERT INTO characters (id, book_id, name, name_keys, profile)
VALUES ($1, $2, $3, $4, $5);
`

const lockCharacterSQL = `
SELECT name FROM characters WHERE id = $1 FOR UPDATE;
`

const updateCharacterSQL = `
UPDATE characters
SET profile = $2, name_keys = $3, updated_at = now()
WHERE id = $1;
`

const listCharactersSQL = `
SELECT id, book_id, profile
FROM characters
WHERE book_id = $1
ORDER BY id;
`

const upsertRelationshipSQL = `
INSERT INTO relationships (id, book_id, character_a, character_b, kind)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (book_id, character_a, character_b) DO UPDATE
SET kind       = EXCLUDED.kind,
    updated_at = now()
RETURNING id, (xmax = 0) AS created;
`

const listRelationshipsSQL = `
SELECT id, book_id, character_a, character_b, kind
FROM relationships
WHERE book_id = $1
ORDER BY character_a, character_b;
`

func scanCharacter(row pgxv5.Row) (character.Character, error) {
	var (
		c   character.Character
		raw []byte
	)
	if err := row.Scan(&c.ID, &c.BookID, &raw); err != nil {
		return c, err
	}
	if err := json.Unmarshal(raw, &c.Profile); err != nil {
		return c, fmt.Errorf("decode profile of %s: %w", c.ID, err)
	}
	return c, nil
}

func (s *Store) FindByName(ctx context.Context, bookID, name string) (*character.Character, error) {
	key := character.NormalizeKey(name)
	if key == "" {
		return nil, nil
	}
	c, err := scanCharacter(s.conn.QueryRow(ctx, findCharacterSQL, bookID, key))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find character %q: %w", name, err)
	}
	return &c, nil
}

func (s *Store) Create(ctx context.Context, bookID string, profile character.Profile) (character.Character, error) {
	profile.Name = strings.TrimSpace(util.SanitizePostgresText(profile.Name))
	if profile.Name == "" {
		return character.Character{}, fmt.Errorf("create character: empty name")
	}
	id, err := s.newID()
	if err != nil {
		return character.Character{}, fmt.Errorf("generate character id: %w", err)
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return character.Character{}, fmt.Errorf("encode profile: %w", err)
	}
	if _, err := s.conn.Exec(ctx, createCharacterSQL, id, bookID, profile.Name, util.SanitizePostgresTexts(character.Keys(profile)), raw); err != nil {
		return character.Character{}, fmt.Errorf("insert character %q: %w", profile.Name, err)
	}
	logger.Debug("[DB] Created character", "book_id", bookID, "id", id, "name", profile.Name)
	return character.Character{ID: id, BookID: bookID, Profile: profile.Clone()}, nil
}

// UpdateProfile replaces the stored profile but keeps the canonical name.
func (s *Store) UpdateProfile(ctx context.Context, characterID string, profile character.Profile) (bool, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var name string
	err = tx.QueryRow(ctx, lockCharacterSQL, characterID).Scan(&name)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock character %s: %w", characterID, err)
	}

	profile.Name = name
	raw, err := json.Marshal(profile)
	if err != nil {
		return false, fmt.Errorf("encode profile: %w", err)
	}
	if _, err := tx.Exec(ctx, updateCharacterSQL, characterID, raw, util.SanitizePostgresTexts(character.Keys(profile))); err != nil {
		return false, fmt.Errorf("update character %s: %w", characterID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) List(ctx context.Context, bookID string) ([]character.Character, error) {
	rows, err := s.conn.Query(ctx, listCharactersSQL, bookID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	out := make([]character.Character, 0)
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Upsert(ctx context.Context, characterA, characterB, kind, bookID string) (character.Relationship, bool, error) {
	if characterA == "" || characterB == "" || characterA == characterB {
		return character.Relationship{}, false, fmt.Errorf("invalid relationship pair %q-%q", characterA, characterB)
	}
	a, b := character.CanonicalPair(characterA, characterB)
	id, err := s.newID()
	if err != nil {
		return character.Relationship{}, false, fmt.Errorf("generate relationship id: %w", err)
	}

	rel := character.Relationship{BookID: bookID, CharacterA: a, CharacterB: b, Kind: kind}
	var created bool
	err = s.conn.QueryRow(ctx, upsertRelationshipSQL, id, bookID, a, b, kind).Scan(&rel.ID, &created)
	if err != nil {
		return character.Relationship{}, false, fmt.Errorf("upsert relationship %s-%s: %w", a, b, err)
	}
	return rel, created, nil
}

func (s *Store) ListRelationships(ctx context.Context, bookID string) ([]character.Relationship, error) {
	rows, err := s.conn.Query(ctx, listRelationshipsSQL, bookID)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	out := make([]character.Relationship, 0)
	for rows.Next() {
		var r character.Relationship
		if err := rows.Scan(&r.ID, &r.BookID, &r.CharacterA, &r.CharacterB, &r.Kind); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
