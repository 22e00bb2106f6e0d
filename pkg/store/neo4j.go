package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds connection settings for a Neo4j-backed concept graph.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jGraph implements ConceptGraph on a Neo4j database. Traversals run as
// Cypher variable-length patterns server-side; depth bounds are baked into
// the pattern because Cypher cannot parameterize them.
type Neo4jGraph struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jGraph connects to Neo4j, verifies connectivity and ensures the
// uniqueness constraints the graph relies on.
func NewNeo4jGraph(ctx context.Context, cfg Neo4jConfig) (*Neo4jGraph, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j URI cannot be empty")
	}
	user := cfg.Username
	if user == "" {
		user = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(user, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	g := &Neo4jGraph{driver: driver, database: cfg.Database}
	g.ensureConstraints(ctx)
	return g, nil
}

// ensureConstraints creates uniqueness constraints. Best-effort: restricted
// users may not be allowed to manage schema.
func (g *Neo4jGraph) ensureConstraints(ctx context.Context) {
	session := g.writeSession(ctx)
	defer session.Close(ctx)

	constraints := []string{
		"CREATE CONSTRAINT concept_title_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.title IS UNIQUE",
		"CREATE CONSTRAINT resource_url_unique IF NOT EXISTS FOR (r:Resource) REQUIRE r.url IS UNIQUE",
		"CREATE CONSTRAINT example_id_unique IF NOT EXISTS FOR (e:Example) REQUIRE e.example_id IS UNIQUE",
	}
	for _, c := range constraints {
		if res, err := session.Run(ctx, c, nil); err == nil {
			_, _ = res.Consume(ctx)
		}
	}
}

// GetConcepts returns concepts matching the given titles exactly, in input
// order. Missing titles are skipped.
func (g *Neo4jGraph) GetConcepts(ctx context.Context, titles []string) ([]Concept, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	records, err := g.readRecords(ctx, `
		UNWIND $titles AS title
		MATCH (c:Concept {title: title})
		RETURN c.title AS title,
		       c.definition AS definition,
		       c.difficulty AS difficulty,
		       c.aliases AS aliases,
		       c.mention_count AS mention_count
	`, map[string]any{"titles": titles})
	if err != nil {
		return nil, fmt.Errorf("failed to get concepts: %w", err)
	}

	byTitle := make(map[string]Concept, len(records))
	for _, rec := range records {
		c := conceptFromRecord(rec)
		byTitle[c.Title] = c
	}

	result := make([]Concept, 0, len(titles))
	for _, title := range titles {
		if c, ok := byTitle[title]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// GetPrerequisites traverses PREREQ_OF edges backward from each seed. Every
// prerequisite is reported once per seed with the minimum hop distance.
func (g *Neo4jGraph) GetPrerequisites(ctx context.Context, seeds []string, maxDepth int) ([]PrereqHit, error) {
	if len(seeds) == 0 || maxDepth < 1 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		UNWIND $titles AS seedTitle
		MATCH (seed:Concept {title: seedTitle})
		MATCH path = (prereq:Concept)-[:PREREQ_OF*1..%d]->(seed)
		WHERE prereq <> seed
		WITH seedTitle, prereq, length(path) AS dist
		RETURN DISTINCT prereq.title AS title,
		       prereq.definition AS definition,
		       prereq.difficulty AS difficulty,
		       prereq.aliases AS aliases,
		       prereq.mention_count AS mention_count,
		       min(dist) AS depth,
		       seedTitle AS seed_concept
	`, maxDepth)

	records, err := g.readRecords(ctx, query, map[string]any{"titles": seeds})
	if err != nil {
		return nil, fmt.Errorf("failed to get prerequisites: %w", err)
	}

	hits := make([]PrereqHit, 0, len(records))
	for _, rec := range records {
		hits = append(hits, PrereqHit{
			Concept: conceptFromRecord(rec),
			Depth:   int(recordInt(rec, "depth")),
			Seed:    recordString(rec, "seed_concept"),
		})
	}

	// Seed input order first, then depth, then title.
	pos := seedPositions(seeds)
	sort.SliceStable(hits, func(i, j int) bool {
		if pos[hits[i].Seed] != pos[hits[j].Seed] {
			return pos[hits[i].Seed] < pos[hits[j].Seed]
		}
		if hits[i].Depth != hits[j].Depth {
			return hits[i].Depth < hits[j].Depth
		}
		return hits[i].Concept.Title < hits[j].Concept.Title
	})
	return hits, nil
}

// GetRelated traverses peer relations in either direction from each seed.
// When a concept is reachable over several paths the relation kind of the
// lexicographically smallest (title, kind) row wins, which keeps the result
// stable across queries.
func (g *Neo4jGraph) GetRelated(ctx context.Context, seeds []string, maxDepth int) ([]RelatedHit, error) {
	if len(seeds) == 0 || maxDepth < 1 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		UNWIND $titles AS seedTitle
		MATCH (seed:Concept {title: seedTitle})
		MATCH (seed)-[r:IS_A|PART_OF|SIBLING|CONTRASTS_WITH*1..%d]-(related:Concept)
		WHERE related.title <> seedTitle
		WITH seedTitle, related, type(r[0]) AS rel_type
		RETURN DISTINCT related.title AS title,
		       related.definition AS definition,
		       related.difficulty AS difficulty,
		       related.aliases AS aliases,
		       related.mention_count AS mention_count,
		       rel_type AS relation_type,
		       seedTitle AS seed_concept
	`, maxDepth)

	records, err := g.readRecords(ctx, query, map[string]any{"titles": seeds})
	if err != nil {
		return nil, fmt.Errorf("failed to get related concepts: %w", err)
	}

	type relRow struct {
		concept  Concept
		relation string
	}
	bySeed := make(map[string][]relRow)
	for _, rec := range records {
		seed := recordString(rec, "seed_concept")
		bySeed[seed] = append(bySeed[seed], relRow{
			concept:  conceptFromRecord(rec),
			relation: recordString(rec, "relation_type"),
		})
	}

	var hits []RelatedHit
	for _, seed := range seeds {
		rows := bySeed[seed]
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].concept.Title != rows[j].concept.Title {
				return rows[i].concept.Title < rows[j].concept.Title
			}
			return rows[i].relation < rows[j].relation
		})
		taken := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			if _, ok := taken[row.concept.Title]; ok {
				continue
			}
			taken[row.concept.Title] = struct{}{}
			hits = append(hits, RelatedHit{
				Concept:  row.concept,
				Relation: row.relation,
				Seed:     seed,
			})
		}
	}
	return hits, nil
}

// GetLongestPrereqChain returns the titles along the longest simple
// PREREQ_OF path ending at the seed, deepest prerequisite first.
func (g *Neo4jGraph) GetLongestPrereqChain(ctx context.Context, seed string, maxDepth int) ([]string, error) {
	if maxDepth < 1 {
		return []string{}, nil
	}

	query := fmt.Sprintf(`
		MATCH path = (prereq:Concept)-[:PREREQ_OF*1..%d]->(seed:Concept {title: $seed})
		WHERE ALL(n IN nodes(path) WHERE single(m IN nodes(path) WHERE m = n))
		WITH [n IN nodes(path) | n.title] AS titles, length(path) AS len
		RETURN titles
		ORDER BY len DESC, titles ASC
		LIMIT 1
	`, maxDepth)

	records, err := g.readRecords(ctx, query, map[string]any{"seed": seed})
	if err != nil {
		return nil, fmt.Errorf("failed to get prerequisite chain: %w", err)
	}
	if len(records) == 0 {
		return []string{}, nil
	}
	return recordStringList(records[0], "titles"), nil
}

// GetResourcesFor returns each resource explaining any of the given titles
// once, with its Concepts limited to the queried set in input order.
func (g *Neo4jGraph) GetResourcesFor(ctx context.Context, titles []string) ([]Resource, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	records, err := g.readRecords(ctx, `
		UNWIND $titles AS conceptTitle
		MATCH (r:Resource)-[:EXPLAINS]->(c:Concept {title: conceptTitle})
		RETURN DISTINCT r.url AS url,
		       r.type AS resource_type,
		       collect(DISTINCT c.title) AS concepts
		ORDER BY url
	`, map[string]any{"titles": titles})
	if err != nil {
		return nil, fmt.Errorf("failed to get resources: %w", err)
	}

	var result []Resource
	seenURLs := make(map[string]struct{}, len(records))
	for _, rec := range records {
		url := recordString(rec, "url")
		if url == "" {
			continue
		}
		if _, ok := seenURLs[url]; ok {
			continue
		}
		seenURLs[url] = struct{}{}

		rtype := recordString(rec, "resource_type")
		if rtype == "" {
			rtype = "unknown"
		}

		matched := make(map[string]struct{})
		for _, t := range recordStringList(rec, "concepts") {
			matched[t] = struct{}{}
		}
		var explained []string
		added := make(map[string]struct{})
		for _, t := range titles {
			if _, ok := added[t]; ok {
				continue
			}
			if _, ok := matched[t]; ok {
				explained = append(explained, t)
				added[t] = struct{}{}
			}
		}

		result = append(result, Resource{
			URL:      url,
			Type:     rtype,
			Concepts: explained,
		})
	}
	return result, nil
}

// GetExamplesFor returns up to maxPerConcept examples per title, ordered by
// example type then text, grouped in input title order.
func (g *Neo4jGraph) GetExamplesFor(ctx context.Context, titles []string, maxPerConcept int) ([]Example, error) {
	if len(titles) == 0 || maxPerConcept == 0 {
		return nil, nil
	}

	slice := "collect(e)[0..$max] AS examples"
	params := map[string]any{"titles": uniqueStrings(titles), "max": maxPerConcept}
	if maxPerConcept < 0 {
		slice = "collect(e) AS examples"
		delete(params, "max")
	}

	query := fmt.Sprintf(`
		UNWIND $titles AS conceptTitle
		MATCH (e:Example)-[:EXEMPLIFIES]->(c:Concept {title: conceptTitle})
		WITH c.title AS concept, e
		ORDER BY e.example_type, e.text
		WITH concept, %s
		UNWIND examples AS e
		RETURN e.text AS text,
		       e.example_type AS example_type,
		       concept,
		       e.source_url AS source_url
	`, slice)

	records, err := g.readRecords(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get examples: %w", err)
	}

	byConcept := make(map[string][]Example)
	for _, rec := range records {
		extype := recordString(rec, "example_type")
		if extype == "" {
			extype = ExampleUnknown
		}
		concept := recordString(rec, "concept")
		byConcept[concept] = append(byConcept[concept], Example{
			Text:    recordString(rec, "text"),
			Type:    extype,
			Concept: concept,
			Source:  recordString(rec, "source_url"),
		})
	}

	var result []Example
	for _, title := range titles {
		result = append(result, byConcept[title]...)
	}
	return result, nil
}

// GetPrereqEdgesAmong returns PREREQ_OF edges with both endpoints in the set.
func (g *Neo4jGraph) GetPrereqEdgesAmong(ctx context.Context, titles []string) ([]PrereqEdge, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	records, err := g.readRecords(ctx, `
		MATCH (a:Concept)-[:PREREQ_OF]->(b:Concept)
		WHERE a.title IN $titles AND b.title IN $titles
		RETURN a.title AS prereq, b.title AS dependent
		ORDER BY prereq, dependent
	`, map[string]any{"titles": titles})
	if err != nil {
		return nil, fmt.Errorf("failed to get prerequisite edges: %w", err)
	}

	edges := make([]PrereqEdge, 0, len(records))
	for _, rec := range records {
		edges = append(edges, PrereqEdge{
			Prereq:    recordString(rec, "prereq"),
			Dependent: recordString(rec, "dependent"),
		})
	}
	return edges, nil
}

// AllConcepts returns every concept ordered by title.
func (g *Neo4jGraph) AllConcepts(ctx context.Context) ([]Concept, error) {
	records, err := g.readRecords(ctx, `
		MATCH (c:Concept)
		RETURN c.title AS title,
		       c.definition AS definition,
		       c.difficulty AS difficulty,
		       c.aliases AS aliases,
		       c.mention_count AS mention_count
		ORDER BY title
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list concepts: %w", err)
	}

	result := make([]Concept, 0, len(records))
	for _, rec := range records {
		result = append(result, conceptFromRecord(rec))
	}
	return result, nil
}

// UpsertConcepts merges concepts by title: the longer definition wins,
// unknown difficulty upgrades, aliases union, mention counts accumulate.
func (g *Neo4jGraph) UpsertConcepts(ctx context.Context, concepts []Concept) error {
	rows := make([]map[string]any, 0, len(concepts))
	for _, c := range concepts {
		if c.Title == "" {
			continue
		}
		mentions := c.MentionCount
		if mentions <= 0 {
			mentions = 1
		}
		aliases := unionAliases(nil, c.Aliases, c.Title)
		if aliases == nil {
			aliases = []string{}
		}
		rows = append(rows, map[string]any{
			"title":      c.Title,
			"definition": c.Definition,
			"difficulty": NormalizeDifficulty(c.Difficulty),
			"aliases":    aliases,
			"mentions":   mentions,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	session := g.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			UNWIND $concepts AS row
			MERGE (n:Concept {title: row.title})
			ON CREATE SET n.definition = row.definition,
			              n.difficulty = row.difficulty,
			              n.aliases = row.aliases,
			              n.mention_count = row.mentions
			ON MATCH SET n.definition = CASE
			                 WHEN size(row.definition) > size(coalesce(n.definition, ''))
			                 THEN row.definition ELSE coalesce(n.definition, '') END,
			             n.difficulty = CASE
			                 WHEN coalesce(n.difficulty, 'unknown') = 'unknown' AND row.difficulty <> 'unknown'
			                 THEN row.difficulty ELSE coalesce(n.difficulty, 'unknown') END,
			             n.aliases = coalesce(n.aliases, []) + [a IN row.aliases WHERE NOT a IN coalesce(n.aliases, [])],
			             n.mention_count = coalesce(n.mention_count, 0) + row.mentions
		`, map[string]any{"concepts": rows})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert concepts: %w", err)
	}
	return nil
}

// AddRelation adds a typed edge between two existing concepts.
func (g *Neo4jGraph) AddRelation(ctx context.Context, source, target, relType string) error {
	if !IsConceptRelation(relType) {
		return fmt.Errorf("%w: %s", ErrUnknownRelation, relType)
	}

	session := g.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			OPTIONAL MATCH (a:Concept {title: $source})
			OPTIONAL MATCH (b:Concept {title: $target})
			RETURN a IS NOT NULL AS hasSource, b IS NOT NULL AS hasTarget
		`, map[string]any{"source": source, "target": target})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		if !recordBool(rec, "hasSource") {
			return nil, fmt.Errorf("relation source %q: %w", source, ErrConceptNotFound)
		}
		if !recordBool(rec, "hasTarget") {
			return nil, fmt.Errorf("relation target %q: %w", target, ErrConceptNotFound)
		}

		// The relation kind was validated against the allowlist above;
		// Cypher cannot parameterize relationship types.
		merge := fmt.Sprintf(`
			MATCH (a:Concept {title: $source})
			MATCH (b:Concept {title: $target})
			MERGE (a)-[:%s]->(b)
		`, relType)
		res, err = tx.Run(ctx, merge, map[string]any{"source": source, "target": target})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return err
	}
	return nil
}

// UpsertResource merges a resource by URL and links it to the listed
// concepts that resolve by title or alias.
func (g *Neo4jGraph) UpsertResource(ctx context.Context, res Resource) error {
	if res.URL == "" {
		return fmt.Errorf("resource URL cannot be empty")
	}

	createType := res.Type
	if createType == "" {
		createType = "unknown"
	}

	session := g.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		out, err := tx.Run(ctx, `
			MERGE (r:Resource {url: $url})
			ON CREATE SET r.type = $createType
			ON MATCH SET r.type = CASE WHEN $newType <> '' THEN $newType ELSE r.type END
		`, map[string]any{"url": res.URL, "createType": createType, "newType": res.Type})
		if err != nil {
			return nil, err
		}
		if _, err := out.Consume(ctx); err != nil {
			return nil, err
		}

		if len(res.Concepts) == 0 {
			return nil, nil
		}
		out, err = tx.Run(ctx, `
			UNWIND $refs AS ref
			MATCH (c:Concept)
			WHERE c.title = ref OR ref IN coalesce(c.aliases, [])
			WITH ref, c
			ORDER BY CASE WHEN c.title = ref THEN 0 ELSE 1 END, c.title
			WITH ref, collect(c)[0] AS c
			MATCH (r:Resource {url: $url})
			MERGE (r)-[:EXPLAINS]->(c)
		`, map[string]any{"refs": res.Concepts, "url": res.URL})
		if err != nil {
			return nil, err
		}
		return out.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert resource: %w", err)
	}
	return nil
}

// UpsertExamples stores examples whose concept resolves by title or alias,
// keyed by a hash of text and resolved concept so duplicates collapse.
func (g *Neo4jGraph) UpsertExamples(ctx context.Context, examples []Example) (int, error) {
	refs := make([]string, 0, len(examples))
	for _, ex := range examples {
		if ex.Text == "" || ex.Concept == "" {
			continue
		}
		refs = append(refs, ex.Concept)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	session := g.writeSession(ctx)
	defer session.Close(ctx)

	stored, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Resolve concept references first: example identity hashes the
		// resolved title, not the raw reference.
		out, err := tx.Run(ctx, `
			UNWIND $refs AS ref
			MATCH (c:Concept)
			WHERE c.title = ref OR ref IN coalesce(c.aliases, [])
			WITH ref, c
			ORDER BY CASE WHEN c.title = ref THEN 0 ELSE 1 END, c.title
			RETURN ref, collect(c.title)[0] AS title
		`, map[string]any{"refs": uniqueStrings(refs)})
		if err != nil {
			return nil, err
		}
		records, err := out.Collect(ctx)
		if err != nil {
			return nil, err
		}
		resolved := make(map[string]string, len(records))
		for _, rec := range records {
			resolved[recordString(rec, "ref")] = recordString(rec, "title")
		}

		rows := make([]map[string]any, 0, len(examples))
		for _, ex := range examples {
			if ex.Text == "" {
				continue
			}
			title, ok := resolved[ex.Concept]
			if !ok || title == "" {
				continue
			}
			rows = append(rows, map[string]any{
				"example_id":   ExampleID(ex.Text, title),
				"text":         ex.Text,
				"example_type": NormalizeExampleType(ex.Type),
				"source_url":   ex.Source,
				"concept":      title,
			})
		}
		if len(rows) == 0 {
			return 0, nil
		}

		out, err = tx.Run(ctx, `
			UNWIND $examples AS ex
			MERGE (e:Example {example_id: ex.example_id})
			SET e.text = ex.text,
			    e.example_type = ex.example_type,
			    e.source_url = ex.source_url
			WITH e, ex
			MATCH (c:Concept {title: ex.concept})
			MERGE (e)-[:EXEMPLIFIES]->(c)
			RETURN count(*) AS stored
		`, map[string]any{"examples": rows})
		if err != nil {
			return nil, err
		}
		rec, err := out.Single(ctx)
		if err != nil {
			return nil, err
		}
		return int(recordInt(rec, "stored")), nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert examples: %w", err)
	}
	return stored.(int), nil
}

// Stats returns record counts per kind.
func (g *Neo4jGraph) Stats(ctx context.Context) (GraphStats, error) {
	session := g.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var stats GraphStats
		counts := []struct {
			query string
			dest  *int64
		}{
			{"MATCH (c:Concept) RETURN count(c) AS n", &stats.Concepts},
			{"MATCH (:Concept)-[r:PREREQ_OF|IS_A|PART_OF|SIBLING|CONTRASTS_WITH]->(:Concept) RETURN count(r) AS n", &stats.Relations},
			{"MATCH (r:Resource) RETURN count(r) AS n", &stats.Resources},
			{"MATCH (e:Example) RETURN count(e) AS n", &stats.Examples},
		}
		for _, c := range counts {
			res, err := tx.Run(ctx, c.query, nil)
			if err != nil {
				return nil, err
			}
			rec, err := res.Single(ctx)
			if err != nil {
				return nil, err
			}
			*c.dest = recordInt(rec, "n")
		}
		return stats, nil
	})
	if err != nil {
		return GraphStats{}, fmt.Errorf("failed to get graph stats: %w", err)
	}
	return result.(GraphStats), nil
}

// PruneOrphans removes concepts with no relations, resources or examples.
func (g *Neo4jGraph) PruneOrphans(ctx context.Context) (int64, error) {
	session := g.writeSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (c:Concept)
			WHERE NOT (c)-[:PREREQ_OF|IS_A|PART_OF|SIBLING|CONTRASTS_WITH]-(:Concept)
			  AND NOT (:Resource)-[:EXPLAINS]->(c)
			  AND NOT (:Example)-[:EXEMPLIFIES]->(c)
			DETACH DELETE c
		`, nil)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return int64(summary.Counters().NodesDeleted()), nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune concepts: %w", err)
	}
	return result.(int64), nil
}

// Close releases the underlying driver.
func (g *Neo4jGraph) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.driver.Close(ctx)
}

func (g *Neo4jGraph) readSession(ctx context.Context) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: g.database,
	})
}

func (g *Neo4jGraph) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: g.database,
	})
}

// readRecords runs a read query and collects all records.
func (g *Neo4jGraph) readRecords(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := g.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*neo4j.Record), nil
}

// conceptFromRecord builds a Concept from title, definition, difficulty,
// aliases and mention_count record keys, defaulting missing properties the
// same way every other backend does.
func conceptFromRecord(rec *neo4j.Record) Concept {
	difficulty := recordString(rec, "difficulty")
	if difficulty == "" {
		difficulty = DifficultyUnknown
	}
	return Concept{
		Title:        recordString(rec, "title"),
		Definition:   recordString(rec, "definition"),
		Difficulty:   difficulty,
		Aliases:      recordStringList(rec, "aliases"),
		MentionCount: int(recordInt(rec, "mention_count")),
	}
}

func recordString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recordInt(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	n, _ := v.(int64)
	return n
}

func recordBool(rec *neo4j.Record, key string) bool {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func recordStringList(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	items, _ := v.([]interface{})
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// seedPositions maps each seed title to its first position in the input.
func seedPositions(seeds []string) map[string]int {
	pos := make(map[string]int, len(seeds))
	for i, s := range seeds {
		if _, ok := pos[s]; !ok {
			pos[s] = i
		}
	}
	return pos
}

// uniqueStrings preserves first occurrences.
func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Compile-time interface check
var _ ConceptGraph = (*Neo4jGraph)(nil)
