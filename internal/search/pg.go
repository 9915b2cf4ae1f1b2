package search

import (
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch implements Searcher against the transcript tables directly, used
// as the fallback when Meilisearch is absent or down.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

// Search runs a case-insensitive substring match over message content,
// newest first. ILIKE is enough here: transcripts are per-account and small
// compared to a document corpus.
func (p *PgSearch) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + escapeLike(q.Text) + "%"
	where := "m.content ILIKE $1"
	args := []any{pattern}
	if q.AccountID != "" {
		where += " AND m.account_id = $2"
		args = append(args, q.AccountID)
	}

	countQuery := "SELECT COUNT(*) FROM messages m WHERE " + where
	var total int
	if err := p.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search hits: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.account_id, a.display_name, m.role, m.content, m.sequence
		FROM messages m
		JOIN accounts a ON a.id = m.account_id
		WHERE %s
		ORDER BY m.created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		var content string
		if err := rows.Scan(&r.ID, &r.AccountID, &r.DisplayName, &r.Role, &content, &r.Sequence); err != nil {
			return nil, 0, fmt.Errorf("scan search hit: %w", err)
		}
		r.Snippet = snippet(content, q.Text)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search hits: %w", err)
	}
	return results, total, nil
}

// escapeLike neutralizes ILIKE metacharacters so a literal query for "100%"
// does not match everything.
func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

// snippet trims content around the first match so long journal entries do
// not flood the result list.
func snippet(content, term string) string {
	const window = 80
	lower := strings.ToLower(content)
	idx := strings.Index(lower, strings.ToLower(term))
	if idx < 0 {
		idx = 0
	}
	runes := []rune(content)
	byteToRune := func(b int) int {
		return len([]rune(content[:b]))
	}
	center := byteToRune(idx)
	start := center - window/2
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(runes) {
		end = len(runes)
	}
	out := string(runes[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}
