package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// SQL repos implementation. Shared by the sqlite and postgres dialects;
// sqlite stores embeddings as little-endian float32 blobs, postgres as
// pgvector values.

type sqlFactRepo struct {
	db      *sql.DB
	dialect string
}

func (r *sqlFactRepo) placeholder(n int) string {
	if r.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (r *sqlFactRepo) embedArg(v []float32) any {
	if r.dialect == "postgres" {
		return pgvector.NewVector(v)
	}
	return encodeEmbedding(v)
}

func (r *sqlFactRepo) Create(topic, content string, embedding []float32, visibility string) (int64, error) {
	u := uuid.New().String()
	now := time.Now().UTC()

	var query string
	if r.dialect == "postgres" {
		query = `INSERT INTO lore_fact (uuid, topic, content, embedding, visibility, date_created)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	} else {
		query = `INSERT INTO lore_fact (uuid, topic, content, embedding, visibility, date_created)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`
	}

	var id int64
	err := r.db.QueryRow(query, u, topic, content, r.embedArg(embedding), visibility, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *sqlFactRepo) Get(id int64) (FactRecord, error) {
	query := `SELECT id, uuid, topic, content, embedding, upvotes, downvotes, flag_count, visibility, date_created
	 FROM lore_fact WHERE id = ` + r.placeholder(1)

	var rec FactRecord
	var createdAny any

	if r.dialect == "postgres" {
		var vec pgvector.Vector
		err := r.db.QueryRow(query, id).Scan(
			&rec.ID, &rec.UUID, &rec.Topic, &rec.Content, &vec,
			&rec.Upvotes, &rec.Downvotes, &rec.FlagCount, &rec.Visibility, &createdAny,
		)
		if err != nil {
			return FactRecord{}, mapNoRows(err)
		}
		rec.Embedding = vec.Slice()
	} else {
		var blob []byte
		err := r.db.QueryRow(query, id).Scan(
			&rec.ID, &rec.UUID, &rec.Topic, &rec.Content, &blob,
			&rec.Upvotes, &rec.Downvotes, &rec.FlagCount, &rec.Visibility, &createdAny,
		)
		if err != nil {
			return FactRecord{}, mapNoRows(err)
		}
		rec.Embedding = decodeEmbedding(blob)
	}

	rec.CreatedAt, _ = decodeAnyTime(createdAny)
	return rec, nil
}

func (r *sqlFactRepo) Replace(id int64, topic, content string, embedding []float32) error {
	var query string
	if r.dialect == "postgres" {
		query = "UPDATE lore_fact SET topic = $1, content = $2, embedding = $3 WHERE id = $4"
	} else {
		query = "UPDATE lore_fact SET topic = ?, content = ?, embedding = ? WHERE id = ?"
	}
	res, err := r.db.Exec(query, topic, content, r.embedArg(embedding), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *sqlFactRepo) Delete(id int64) error {
	res, err := r.db.Exec("DELETE FROM lore_fact WHERE id = "+r.placeholder(1), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *sqlFactRepo) AddVote(id int64, up bool) (VoteCounts, error) {
	col := "downvotes"
	if up {
		col = "upvotes"
	}
	// Single-statement increment; concurrent votes never lose updates.
	query := fmt.Sprintf(
		"UPDATE lore_fact SET %s = %s + 1 WHERE id = %s RETURNING upvotes, downvotes",
		col, col, r.placeholder(1),
	)
	var counts VoteCounts
	err := r.db.QueryRow(query, id).Scan(&counts.Upvotes, &counts.Downvotes)
	if err != nil {
		return VoteCounts{}, mapNoRows(err)
	}
	return counts, nil
}

func (r *sqlFactRepo) IncrementFlag(id int64) (int64, error) {
	query := "UPDATE lore_fact SET flag_count = flag_count + 1 WHERE id = " +
		r.placeholder(1) + " RETURNING flag_count"
	var count int64
	err := r.db.QueryRow(query, id).Scan(&count)
	if err != nil {
		return 0, mapNoRows(err)
	}
	return count, nil
}

func (r *sqlFactRepo) ResetFlags(id int64) error {
	res, err := r.db.Exec("UPDATE lore_fact SET flag_count = 0 WHERE id = "+r.placeholder(1), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *sqlFactRepo) Each(fn func(id int64, embedding []float32) error) error {
	rows, err := r.db.Query("SELECT id, embedding FROM lore_fact ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var emb []float32
		if r.dialect == "postgres" {
			var vec pgvector.Vector
			if err := rows.Scan(&id, &vec); err != nil {
				return err
			}
			emb = vec.Slice()
		} else {
			var blob []byte
			if err := rows.Scan(&id, &blob); err != nil {
				return err
			}
			emb = decodeEmbedding(blob)
		}
		if err := fn(id, emb); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *sqlFactRepo) ListTopics(match string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 25
	}

	var rows *sql.Rows
	var err error
	if match == "" {
		query := "SELECT topic FROM lore_fact ORDER BY id DESC LIMIT " + r.placeholder(1)
		rows, err = r.db.Query(query, limit)
	} else {
		var query string
		if r.dialect == "postgres" {
			query = "SELECT topic FROM lore_fact WHERE topic ILIKE $1 ORDER BY id DESC LIMIT $2"
		} else {
			query = "SELECT topic FROM lore_fact WHERE topic LIKE ? ORDER BY id DESC LIMIT ?"
		}
		rows, err = r.db.Query(query, "%"+match+"%", limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

type sqlAliasRepo struct {
	db      *sql.DB
	dialect string
}

func (r *sqlAliasRepo) Upsert(trigger, replacement string) error {
	var query string
	if r.dialect == "postgres" {
		query = `INSERT INTO lore_alias ("trigger", replacement) VALUES ($1, $2)
		 ON CONFLICT ("trigger") DO UPDATE SET replacement = EXCLUDED.replacement`
	} else {
		query = `INSERT INTO lore_alias ("trigger", replacement) VALUES (?, ?)
		 ON CONFLICT ("trigger") DO UPDATE SET replacement = excluded.replacement`
	}
	_, err := r.db.Exec(query, trigger, replacement)
	return err
}

func (r *sqlAliasRepo) Delete(trigger string) error {
	ph := "?"
	if r.dialect == "postgres" {
		ph = "$1"
	}
	res, err := r.db.Exec(`DELETE FROM lore_alias WHERE "trigger" = `+ph, trigger)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *sqlAliasRepo) All() (map[string]string, error) {
	rows, err := r.db.Query(`SELECT "trigger", replacement FROM lore_alias`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var trigger, replacement string
		if err := rows.Scan(&trigger, &replacement); err != nil {
			return nil, err
		}
		out[trigger] = replacement
	}
	return out, rows.Err()
}

type sqlConfigRepo struct {
	db      *sql.DB
	dialect string
}

func (r *sqlConfigRepo) Get(key string) (string, error) {
	ph := "?"
	if r.dialect == "postgres" {
		ph = "$1"
	}
	var value string
	err := r.db.QueryRow("SELECT value FROM lore_config WHERE key = "+ph, key).Scan(&value)
	if err != nil {
		return "", mapNoRows(err)
	}
	return value, nil
}

func (r *sqlConfigRepo) Set(key, value string) error {
	var query string
	if r.dialect == "postgres" {
		query = `INSERT INTO lore_config (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	} else {
		query = `INSERT INTO lore_config (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	}
	_, err := r.db.Exec(query, key, value)
	return err
}

func (r *sqlConfigRepo) Delete(key string) error {
	ph := "?"
	if r.dialect == "postgres" {
		ph = "$1"
	}
	res, err := r.db.Exec("DELETE FROM lore_config WHERE key = "+ph, key)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *sqlConfigRepo) All() (map[string]string, error) {
	rows, err := r.db.Query("SELECT key, value FROM lore_config")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SQL driver repos
type sqlRepos struct {
	fact   FactRepo
	alias  AliasRepo
	config ConfigRepo
}

func (d *SQLDriver) initRepos() {
	if d.repos == nil {
		d.repos = &sqlRepos{
			fact:   &sqlFactRepo{db: d.db(), dialect: d.dialect},
			alias:  &sqlAliasRepo{db: d.db(), dialect: d.dialect},
			config: &sqlConfigRepo{db: d.db(), dialect: d.dialect},
		}
	}
}

func (d *SQLDriver) Fact() FactRepo {
	d.initRepos()
	return d.repos.fact
}

func (d *SQLDriver) Alias() AliasRepo {
	d.initRepos()
	return d.repos.alias
}

func (d *SQLDriver) Config() ConfigRepo {
	d.initRepos()
	return d.repos.config
}
