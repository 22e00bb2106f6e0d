package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteGraph implements ConceptGraph using SQLite as the backend.
type SQLiteGraph struct {
	db *sql.DB
}

// NewSQLiteGraph opens or creates a SQLite-backed concept graph.
// The dbPath can be a file path or ":memory:" for an in-memory database.
// Creates tables and indexes if they don't exist.
func NewSQLiteGraph(dbPath string) (*SQLiteGraph, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// on one coherent handle.
	db.SetMaxOpenConns(1)

	store := &SQLiteGraph{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema if it doesn't exist.
// Also performs schema migrations for new columns.
func (s *SQLiteGraph) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS concepts (
		title TEXT PRIMARY KEY,
		definition TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT 'unknown',
		aliases TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS relations (
		source_title TEXT NOT NULL,
		kind TEXT NOT NULL,
		target_title TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source_title, kind, target_title),
		FOREIGN KEY (source_title) REFERENCES concepts(title),
		FOREIGN KEY (target_title) REFERENCES concepts(title)
	);

	CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_title, kind);
	CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_title, kind);

	CREATE TABLE IF NOT EXISTS resources (
		url TEXT PRIMARY KEY,
		type TEXT NOT NULL DEFAULT 'unknown',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS resource_concepts (
		url TEXT NOT NULL,
		concept_title TEXT NOT NULL,
		PRIMARY KEY (url, concept_title),
		FOREIGN KEY (url) REFERENCES resources(url),
		FOREIGN KEY (concept_title) REFERENCES concepts(title)
	);

	CREATE INDEX IF NOT EXISTS idx_resource_concepts_title ON resource_concepts(concept_title);

	CREATE TABLE IF NOT EXISTS examples (
		id TEXT PRIMARY KEY,
		concept_title TEXT NOT NULL,
		text TEXT NOT NULL,
		example_type TEXT NOT NULL DEFAULT 'unknown',
		source_url TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (concept_title) REFERENCES concepts(title)
	);

	CREATE INDEX IF NOT EXISTS idx_examples_concept ON examples(concept_title);

	CREATE TABLE IF NOT EXISTS processed_documents (
		hash TEXT PRIMARY KEY,
		source TEXT,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	// Run schema migrations for new columns
	return s.migrateSchema()
}

// migrateSchema adds new columns to existing tables if they don't exist.
func (s *SQLiteGraph) migrateSchema() error {
	// Check and add mention_count column
	if !s.columnExists("concepts", "mention_count") {
		_, err := s.db.Exec("ALTER TABLE concepts ADD COLUMN mention_count INTEGER NOT NULL DEFAULT 0")
		if err != nil {
			return fmt.Errorf("failed to add mention_count column: %w", err)
		}
	}

	return nil
}

// columnExists checks if a column exists in a table.
func (s *SQLiteGraph) columnExists(tableName, columnName string) bool {
	query := fmt.Sprintf("PRAGMA table_info(%s)", tableName)
	rows, err := s.db.Query(query)
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int

		err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk)
		if err != nil {
			return false
		}

		if name == columnName {
			return true
		}
	}

	return false
}

// GetConcepts returns concepts matching the given titles exactly, in input
// order. Missing titles are skipped.
func (s *SQLiteGraph) GetConcepts(ctx context.Context, titles []string) ([]Concept, error) {
	byTitle, err := s.conceptsByTitle(ctx, titles)
	if err != nil {
		return nil, err
	}

	result := make([]Concept, 0, len(titles))
	for _, title := range titles {
		if c, ok := byTitle[title]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// GetPrerequisites walks PREREQ_OF edges backward from each seed with BFS,
// which yields the minimum hop distance per prerequisite.
func (s *SQLiteGraph) GetPrerequisites(ctx context.Context, seeds []string, maxDepth int) ([]PrereqHit, error) {
	var hits []PrereqHit
	for _, seed := range seeds {
		exists, err := s.conceptExists(ctx, seed)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}

		depths := map[string]int{seed: 0}
		queue := []string{seed}
		var found []string

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			if depths[current] >= maxDepth {
				continue
			}
			prereqs, err := s.incomingPrereqs(ctx, current)
			if err != nil {
				return nil, err
			}
			for _, prereq := range prereqs {
				if _, seen := depths[prereq]; seen {
					continue
				}
				depths[prereq] = depths[current] + 1
				found = append(found, prereq)
				queue = append(queue, prereq)
			}
		}

		sort.Slice(found, func(i, j int) bool {
			if depths[found[i]] != depths[found[j]] {
				return depths[found[i]] < depths[found[j]]
			}
			return found[i] < found[j]
		})

		byTitle, err := s.conceptsByTitle(ctx, found)
		if err != nil {
			return nil, err
		}
		for _, title := range found {
			c, ok := byTitle[title]
			if !ok {
				continue
			}
			hits = append(hits, PrereqHit{
				Concept: c,
				Depth:   depths[title],
				Seed:    seed,
			})
		}
	}
	return hits, nil
}

// GetRelated walks peer relations in either direction from each seed with
// BFS. The reported relation kind is the first edge on the discovery path.
func (s *SQLiteGraph) GetRelated(ctx context.Context, seeds []string, maxDepth int) ([]RelatedHit, error) {
	var hits []RelatedHit
	for _, seed := range seeds {
		exists, err := s.conceptExists(ctx, seed)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}

		type visit struct {
			title    string
			depth    int
			firstRel string
		}
		seen := map[string]struct{}{seed: {}}
		queue := []visit{{title: seed}}
		var found []visit

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			if current.depth >= maxDepth {
				continue
			}
			peers, err := s.peerEdges(ctx, current.title)
			if err != nil {
				return nil, err
			}
			for _, p := range peers {
				if _, ok := seen[p.title]; ok {
					continue
				}
				seen[p.title] = struct{}{}
				rel := current.firstRel
				if current.depth == 0 {
					rel = p.kind
				}
				v := visit{title: p.title, depth: current.depth + 1, firstRel: rel}
				found = append(found, v)
				queue = append(queue, v)
			}
		}

		titles := make([]string, len(found))
		for i, v := range found {
			titles[i] = v.title
		}
		byTitle, err := s.conceptsByTitle(ctx, titles)
		if err != nil {
			return nil, err
		}
		for _, v := range found {
			c, ok := byTitle[v.title]
			if !ok {
				continue
			}
			hits = append(hits, RelatedHit{
				Concept:  c,
				Relation: v.firstRel,
				Seed:     seed,
			})
		}
	}
	return hits, nil
}

// GetLongestPrereqChain enumerates simple PREREQ_OF paths ending at the seed
// and returns the titles of the longest, deepest prerequisite first.
func (s *SQLiteGraph) GetLongestPrereqChain(ctx context.Context, seed string, maxDepth int) ([]string, error) {
	exists, err := s.conceptExists(ctx, seed)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []string{}, nil
	}

	// Reverse adjacency: dependent -> prerequisites, sorted for a stable walk.
	rows, err := s.db.QueryContext(ctx,
		"SELECT source_title, target_title FROM relations WHERE kind = ?", RelPrereqOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query prerequisite edges: %w", err)
	}
	defer rows.Close()

	reverse := make(map[string][]string)
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		reverse[target] = append(reverse[target], source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	for _, prereqs := range reverse {
		sort.Strings(prereqs)
	}

	// DFS backward from the seed over simple paths; first longest found wins.
	var best []string
	path := []string{seed}
	onPath := map[string]struct{}{seed: {}}

	var walk func(current string, depth int)
	walk = func(current string, depth int) {
		if depth > 0 && len(path) > len(best) {
			best = append([]string(nil), path...)
		}
		if depth >= maxDepth {
			return
		}
		for _, prereq := range reverse[current] {
			if _, ok := onPath[prereq]; ok {
				continue
			}
			onPath[prereq] = struct{}{}
			path = append(path, prereq)
			walk(prereq, depth+1)
			path = path[:len(path)-1]
			delete(onPath, prereq)
		}
	}
	walk(seed, 0)

	if best == nil {
		return []string{}, nil
	}
	// The walk records seed-first; chains read deepest prerequisite first.
	reversed := make([]string, len(best))
	for i, title := range best {
		reversed[len(best)-1-i] = title
	}
	return reversed, nil
}

// GetResourcesFor returns each resource explaining any of the given titles
// once, with its Concepts limited to the queried set in input order.
func (s *SQLiteGraph) GetResourcesFor(ctx context.Context, titles []string) ([]Resource, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	marks, args := inClause(titles)
	query := fmt.Sprintf(`
		SELECT r.rowid, r.url, r.type, rc.concept_title
		FROM resources r
		JOIN resource_concepts rc ON rc.url = r.url
		WHERE rc.concept_title IN (%s)
		ORDER BY r.rowid
	`, marks)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	type resRow struct {
		url      string
		rtype    string
		concepts map[string]struct{}
	}
	var order []string
	byURL := make(map[string]*resRow)
	for rows.Next() {
		var rowid int64
		var url, rtype, title string
		if err := rows.Scan(&rowid, &url, &rtype, &title); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		r, ok := byURL[url]
		if !ok {
			r = &resRow{url: url, rtype: rtype, concepts: make(map[string]struct{})}
			byURL[url] = r
			order = append(order, url)
		}
		r.concepts[title] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}

	var result []Resource
	for _, url := range order {
		r := byURL[url]
		var explained []string
		added := make(map[string]struct{})
		for _, t := range titles {
			if _, ok := added[t]; ok {
				continue
			}
			if _, ok := r.concepts[t]; ok {
				explained = append(explained, t)
				added[t] = struct{}{}
			}
		}
		if len(explained) == 0 {
			continue
		}
		result = append(result, Resource{
			URL:      r.url,
			Type:     r.rtype,
			Concepts: explained,
		})
	}
	return result, nil
}

// GetExamplesFor returns up to maxPerConcept examples per title, ordered by
// example type then text, grouped in input title order.
func (s *SQLiteGraph) GetExamplesFor(ctx context.Context, titles []string, maxPerConcept int) ([]Example, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	marks, args := inClause(titles)
	query := fmt.Sprintf(`
		SELECT concept_title, text, example_type, source_url
		FROM examples
		WHERE concept_title IN (%s)
		ORDER BY concept_title, example_type, text
	`, marks)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}
	defer rows.Close()

	byConcept := make(map[string][]Example)
	for rows.Next() {
		var ex Example
		if err := rows.Scan(&ex.Concept, &ex.Text, &ex.Type, &ex.Source); err != nil {
			return nil, fmt.Errorf("failed to scan example: %w", err)
		}
		byConcept[ex.Concept] = append(byConcept[ex.Concept], ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating examples: %w", err)
	}

	var result []Example
	for _, title := range titles {
		group := byConcept[title]
		if maxPerConcept >= 0 && len(group) > maxPerConcept {
			group = group[:maxPerConcept]
		}
		result = append(result, group...)
	}
	return result, nil
}

// GetPrereqEdgesAmong returns PREREQ_OF edges with both endpoints in the set.
func (s *SQLiteGraph) GetPrereqEdgesAmong(ctx context.Context, titles []string) ([]PrereqEdge, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	marks, args := inClause(titles)
	query := fmt.Sprintf(`
		SELECT source_title, target_title
		FROM relations
		WHERE kind = ? AND source_title IN (%s) AND target_title IN (%s)
		ORDER BY rowid
	`, marks, marks)

	all := make([]interface{}, 0, 1+2*len(args))
	all = append(all, RelPrereqOf)
	all = append(all, args...)
	all = append(all, args...)

	rows, err := s.db.QueryContext(ctx, query, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prerequisite edges: %w", err)
	}
	defer rows.Close()

	var edges []PrereqEdge
	for rows.Next() {
		var e PrereqEdge
		if err := rows.Scan(&e.Prereq, &e.Dependent); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	return edges, nil
}

// AllConcepts returns every concept ordered by title.
func (s *SQLiteGraph) AllConcepts(ctx context.Context) ([]Concept, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, definition, difficulty, aliases, mention_count
		FROM concepts
		ORDER BY title
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	defer rows.Close()

	var result []Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating concepts: %w", err)
	}
	if result == nil {
		result = []Concept{}
	}
	return result, nil
}

// UpsertConcepts merges concepts by title.
func (s *SQLiteGraph) UpsertConcepts(ctx context.Context, concepts []Concept) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range concepts {
		if c.Title == "" {
			continue
		}
		incoming := c
		incoming.Difficulty = NormalizeDifficulty(incoming.Difficulty)
		mentions := incoming.MentionCount
		if mentions <= 0 {
			mentions = 1
		}

		var existing Concept
		var aliasesJSON string
		err := tx.QueryRowContext(ctx,
			"SELECT definition, difficulty, aliases, mention_count FROM concepts WHERE title = ?",
			c.Title).Scan(&existing.Definition, &existing.Difficulty, &aliasesJSON, &existing.MentionCount)

		if err == sql.ErrNoRows {
			aliases, err := marshalAliases(unionAliases(nil, incoming.Aliases, c.Title))
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO concepts (title, definition, difficulty, aliases, mention_count)
				VALUES (?, ?, ?, ?, ?)
			`, c.Title, incoming.Definition, incoming.Difficulty, aliases, mentions)
			if err != nil {
				return fmt.Errorf("failed to insert concept %q: %w", c.Title, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read concept %q: %w", c.Title, err)
		}

		existing.Aliases, err = unmarshalAliases(aliasesJSON)
		if err != nil {
			return fmt.Errorf("failed to decode aliases for %q: %w", c.Title, err)
		}

		if len(incoming.Definition) > len(existing.Definition) {
			existing.Definition = incoming.Definition
		}
		if existing.Difficulty == DifficultyUnknown && incoming.Difficulty != DifficultyUnknown {
			existing.Difficulty = incoming.Difficulty
		}
		existing.Aliases = unionAliases(existing.Aliases, incoming.Aliases, c.Title)
		existing.MentionCount += mentions

		aliases, err := marshalAliases(existing.Aliases)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE concepts SET definition = ?, difficulty = ?, aliases = ?, mention_count = ?
			WHERE title = ?
		`, existing.Definition, existing.Difficulty, aliases, existing.MentionCount, c.Title)
		if err != nil {
			return fmt.Errorf("failed to update concept %q: %w", c.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit concepts: %w", err)
	}
	return nil
}

// AddRelation adds a typed edge between two existing concepts.
func (s *SQLiteGraph) AddRelation(ctx context.Context, source, target, relType string) error {
	if !IsConceptRelation(relType) {
		return fmt.Errorf("%w: %s", ErrUnknownRelation, relType)
	}

	exists, err := s.conceptExists(ctx, source)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("relation source %q: %w", source, ErrConceptNotFound)
	}
	exists, err = s.conceptExists(ctx, target)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("relation target %q: %w", target, ErrConceptNotFound)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO relations (source_title, kind, target_title) VALUES (?, ?, ?)",
		source, relType, target)
	if err != nil {
		return fmt.Errorf("failed to add relation: %w", err)
	}
	return nil
}

// UpsertResource merges a resource by URL and links it to the listed
// concepts that exist.
func (s *SQLiteGraph) UpsertResource(ctx context.Context, res Resource) error {
	if res.URL == "" {
		return fmt.Errorf("resource URL cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingType string
	err = tx.QueryRowContext(ctx, "SELECT type FROM resources WHERE url = ?", res.URL).Scan(&existingType)
	if err == sql.ErrNoRows {
		rtype := res.Type
		if rtype == "" {
			rtype = "unknown"
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO resources (url, type) VALUES (?, ?)", res.URL, rtype)
		if err != nil {
			return fmt.Errorf("failed to insert resource: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to read resource: %w", err)
	} else if res.Type != "" && res.Type != existingType {
		_, err = tx.ExecContext(ctx, "UPDATE resources SET type = ? WHERE url = ?", res.Type, res.URL)
		if err != nil {
			return fmt.Errorf("failed to update resource: %w", err)
		}
	}

	for _, ref := range res.Concepts {
		title, ok, err := resolveTitle(ctx, tx, ref)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		_, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO resource_concepts (url, concept_title) VALUES (?, ?)",
			res.URL, title)
		if err != nil {
			return fmt.Errorf("failed to link resource to %q: %w", title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resource: %w", err)
	}
	return nil
}

// UpsertExamples stores examples whose concept resolves by title or alias.
func (s *SQLiteGraph) UpsertExamples(ctx context.Context, examples []Example) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stored := 0
	for _, ex := range examples {
		if ex.Text == "" {
			continue
		}
		title, ok, err := resolveTitle(ctx, tx, ex.Concept)
		if err != nil {
			return stored, err
		}
		if !ok {
			continue
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO examples (id, concept_title, text, example_type, source_url)
			VALUES (?, ?, ?, ?, ?)
		`, ExampleID(ex.Text, title), title, ex.Text, NormalizeExampleType(ex.Type), ex.Source)
		if err != nil {
			return stored, fmt.Errorf("failed to store example: %w", err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit examples: %w", err)
	}
	return stored, nil
}

// Stats returns record counts per kind.
func (s *SQLiteGraph) Stats(ctx context.Context) (GraphStats, error) {
	var stats GraphStats
	counts := []struct {
		table string
		dest  *int64
	}{
		{"concepts", &stats.Concepts},
		{"relations", &stats.Relations},
		{"resources", &stats.Resources},
		{"examples", &stats.Examples},
	}
	for _, c := range counts {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", c.table)
		if err := s.db.QueryRowContext(ctx, query).Scan(c.dest); err != nil {
			return GraphStats{}, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}
	return stats, nil
}

// PruneOrphans removes concepts with no relations, resources or examples.
func (s *SQLiteGraph) PruneOrphans(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM concepts
		WHERE title NOT IN (SELECT source_title FROM relations)
		  AND title NOT IN (SELECT target_title FROM relations)
		  AND title NOT IN (SELECT concept_title FROM resource_concepts)
		  AND title NOT IN (SELECT concept_title FROM examples)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prune concepts: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned concepts: %w", err)
	}
	return removed, nil
}

// Close releases database resources.
func (s *SQLiteGraph) Close() error {
	return s.db.Close()
}

// conceptExists reports whether a concept with the exact title is stored.
func (s *SQLiteGraph) conceptExists(ctx context.Context, title string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM concepts WHERE title = ?", title).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check concept %q: %w", title, err)
	}
	return true, nil
}

// incomingPrereqs returns the prerequisites of a concept in edge insertion
// order.
func (s *SQLiteGraph) incomingPrereqs(ctx context.Context, title string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT source_title FROM relations WHERE kind = ? AND target_title = ? ORDER BY rowid",
		RelPrereqOf, title)
	if err != nil {
		return nil, fmt.Errorf("failed to query prerequisites: %w", err)
	}
	defer rows.Close()

	var prereqs []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		prereqs = append(prereqs, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	return prereqs, nil
}

// peerEdge is one undirected neighbor reached over a peer relation.
type peerEdge struct {
	title string
	kind  string
}

// peerEdges returns the peer neighbors of a concept in edge insertion order.
func (s *SQLiteGraph) peerEdges(ctx context.Context, title string) ([]peerEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_title, kind, target_title
		FROM relations
		WHERE kind <> ? AND (source_title = ? OR target_title = ?)
		ORDER BY rowid
	`, RelPrereqOf, title, title)
	if err != nil {
		return nil, fmt.Errorf("failed to query peer relations: %w", err)
	}
	defer rows.Close()

	var peers []peerEdge
	for rows.Next() {
		var source, kind, target string
		if err := rows.Scan(&source, &kind, &target); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		neighbor := target
		if target == title {
			neighbor = source
		}
		peers = append(peers, peerEdge{title: neighbor, kind: kind})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	return peers, nil
}

// conceptsByTitle batch-fetches concepts keyed by title.
func (s *SQLiteGraph) conceptsByTitle(ctx context.Context, titles []string) (map[string]Concept, error) {
	result := make(map[string]Concept, len(titles))
	if len(titles) == 0 {
		return result, nil
	}

	marks, args := inClause(titles)
	query := fmt.Sprintf(`
		SELECT title, definition, difficulty, aliases, mention_count
		FROM concepts
		WHERE title IN (%s)
	`, marks)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		result[c.Title] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating concepts: %w", err)
	}
	return result, nil
}

// scanConcept reads one concept row in column order title, definition,
// difficulty, aliases, mention_count.
func scanConcept(rows *sql.Rows) (Concept, error) {
	var c Concept
	var aliasesJSON string
	if err := rows.Scan(&c.Title, &c.Definition, &c.Difficulty, &aliasesJSON, &c.MentionCount); err != nil {
		return Concept{}, fmt.Errorf("failed to scan concept: %w", err)
	}
	aliases, err := unmarshalAliases(aliasesJSON)
	if err != nil {
		return Concept{}, fmt.Errorf("failed to decode aliases for %q: %w", c.Title, err)
	}
	c.Aliases = aliases
	return c, nil
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// resolveTitle maps a concept reference onto a stored title, matching the
// title exactly first and falling back to an alias scan.
func resolveTitle(ctx context.Context, q rowQuerier, ref string) (string, bool, error) {
	if ref == "" {
		return "", false, nil
	}

	var title string
	err := q.QueryRowContext(ctx, "SELECT title FROM concepts WHERE title = ?", ref).Scan(&title)
	if err == nil {
		return title, true, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("failed to resolve concept %q: %w", ref, err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT c.title
		FROM concepts c, json_each(c.aliases) a
		WHERE a.value = ?
		ORDER BY c.title
		LIMIT 1
	`, ref).Scan(&title)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve alias %q: %w", ref, err)
	}
	return title, true, nil
}

// marshalAliases encodes an alias list as a JSON array, never null.
func marshalAliases(aliases []string) (string, error) {
	if len(aliases) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(aliases)
	if err != nil {
		return "", fmt.Errorf("failed to marshal aliases: %w", err)
	}
	return string(b), nil
}

// unmarshalAliases decodes a stored alias column, treating empty and "[]"
// as no aliases.
func unmarshalAliases(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var aliases []string
	if err := json.Unmarshal([]byte(s), &aliases); err != nil {
		return nil, err
	}
	if len(aliases) == 0 {
		return nil, nil
	}
	return aliases, nil
}

// inClause builds a "?,?,?" placeholder list with matching args for an
// IN (...) predicate.
func inClause(values []string) (string, []interface{}) {
	marks := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = v
	}
	return strings.Join(marks, ","), args
}

// Compile-time interface check
var _ ConceptGraph = (*SQLiteGraph)(nil)
