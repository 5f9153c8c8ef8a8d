package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Neo4jAccessMode controls whether a session is opened for read or write operations.
type Neo4jAccessMode string

const (
	AccessModeWrite Neo4jAccessMode = "write"
	AccessModeRead  Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the minimal subset of Neo4j session configuration we require.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// neo4jDriver abstracts the driver capabilities used by the store so tests can
// provide lightweight fakes.
type neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) neo4jSession
	Close(ctx context.Context) error
}

type neo4jSession interface {
	BeginTransaction(ctx context.Context) (neo4jTransaction, error)
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jTransaction interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
	Close(ctx context.Context) error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

// ErrNeo4jUnavailable is returned when graph operations are attempted without a configured driver.
var ErrNeo4jUnavailable = errors.New("neo4j driver not configured")

const (
	cypherFactCount = `MATCH (f:Fact {session: $session}) RETURN count(f) AS n`

	// The new fact shadows the current head of its key, if any.
	cypherSaveFact = `
OPTIONAL MATCH (prev:Fact {session: $session, key: $key})
WHERE NOT (prev)<-[:SHADOWS]-()
CREATE (f:Fact {session: $session, key: $key, value: $value, importance: $importance, step: $step, at_ns: $at_ns, seq: $seq})
WITH f, prev
FOREACH (_ IN CASE WHEN prev IS NULL THEN [] ELSE [1] END | CREATE (f)-[:SHADOWS]->(prev))`

	cypherSaveStep = `
CREATE (:Step {session: $session, idx: $idx, action: $action, result: $result, at_ns: $at_ns})`

	cypherLoadFacts = `
MATCH (f:Fact {session: $session})
RETURN f.key AS key, f.value AS value, f.importance AS importance, f.step AS step, f.at_ns AS at_ns
ORDER BY f.seq`

	cypherLoadSteps = `
MATCH (s:Step {session: $session})
RETURN s.idx AS idx, s.action AS action, s.result AS result, s.at_ns AS at_ns
ORDER BY s.idx`

	cypherLineage = `
MATCH (head:Fact {session: $session, key: $key})
WHERE NOT (head)<-[:SHADOWS]-()
MATCH p = (head)-[:SHADOWS*0..]->(f:Fact)
RETURN f.key AS key, f.value AS value, f.importance AS importance, f.step AS step, f.at_ns AS at_ns
ORDER BY length(p)`
)

// Neo4jStore records facts as a graph: each fact node points at the fact it
// shadows through a SHADOWS relationship, so a belief's history is a path.
type Neo4jStore struct {
	driver   neo4jDriver
	database string
}

// NewNeo4jStore builds a store over driver. See WrapNeo4jDriver for the real driver.
func NewNeo4jStore(driver neo4jDriver, database string) (*Neo4jStore, error) {
	if driver == nil {
		return nil, errors.New("neo4j driver is nil")
	}
	return &Neo4jStore{driver: driver, database: database}, nil
}

// CreateSchema ensures the lookup indexes exist.
func (s *Neo4jStore) CreateSchema(ctx context.Context) error {
	if s.driver == nil {
		return ErrNeo4jUnavailable
	}
	session := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	defer session.Close(ctx)
	queries := []string{
		"CREATE INDEX IF NOT EXISTS FOR (f:Fact) ON (f.session, f.key)",
		"CREATE INDEX IF NOT EXISTS FOR (s:Step) ON (s.session)",
	}
	for _, query := range queries {
		res, err := session.Run(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("neo4j schema query: %w", err)
		}
		if res != nil {
			_ = res.Close(ctx)
		}
	}
	return nil
}

func (s *Neo4jStore) SaveFact(ctx context.Context, session string, f Fact) error {
	if s.driver == nil {
		return ErrNeo4jUnavailable
	}
	sess := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	defer sess.Close(ctx)

	tx, err := sess.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("neo4j begin tx: %w", err)
	}
	defer tx.Close(ctx)

	seq, err := s.countFacts(ctx, tx, session)
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	res, err := tx.Run(ctx, cypherSaveFact, map[string]any{
		"session":    session,
		"key":        f.Key,
		"value":      f.Value,
		"importance": string(f.Importance),
		"step":       int64(f.Step),
		"at_ns":      f.At.UnixNano(),
		"seq":        seq + 1,
	})
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("neo4j save fact: %w", err)
	}
	if res != nil {
		_ = res.Close(ctx)
	}
	return tx.Commit(ctx)
}

func (s *Neo4jStore) countFacts(ctx context.Context, tx neo4jTransaction, session string) (int64, error) {
	res, err := tx.Run(ctx, cypherFactCount, map[string]any{"session": session})
	if err != nil {
		return 0, fmt.Errorf("neo4j count facts: %w", err)
	}
	defer res.Close(ctx)
	if !res.Next(ctx) {
		return 0, res.Err()
	}
	return int64Value(res.Record(), "n"), nil
}

func (s *Neo4jStore) SaveStep(ctx context.Context, session string, st Step) error {
	if s.driver == nil {
		return ErrNeo4jUnavailable
	}
	sess := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypherSaveStep, map[string]any{
		"session": session,
		"idx":     int64(st.Index),
		"action":  st.Action,
		"result":  st.Result,
		"at_ns":   st.At.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("neo4j save step: %w", err)
	}
	if res != nil {
		_ = res.Close(ctx)
	}
	return nil
}

// Load returns the session's facts in write order and its steps by index.
func (s *Neo4jStore) Load(ctx context.Context, session string) (Snapshot, error) {
	var snap Snapshot
	if s.driver == nil {
		return snap, ErrNeo4jUnavailable
	}
	sess := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	defer sess.Close(ctx)

	facts, err := s.queryFacts(ctx, sess, cypherLoadFacts, map[string]any{"session": session})
	if err != nil {
		return snap, err
	}
	snap.Facts = facts

	res, err := sess.Run(ctx, cypherLoadSteps, map[string]any{"session": session})
	if err != nil {
		return snap, fmt.Errorf("neo4j load steps: %w", err)
	}
	defer res.Close(ctx)
	for res.Next(ctx) {
		rec := res.Record()
		snap.Steps = append(snap.Steps, Step{
			Index:  int(int64Value(rec, "idx")),
			Action: stringValue(rec, "action"),
			Result: stringValue(rec, "result"),
			At:     time.Unix(0, int64Value(rec, "at_ns")),
		})
	}
	return snap, res.Err()
}

// Lineage walks the SHADOWS chain for key, newest value first.
func (s *Neo4jStore) Lineage(ctx context.Context, session, key string) ([]Fact, error) {
	if s.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	sess := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	defer sess.Close(ctx)
	return s.queryFacts(ctx, sess, cypherLineage, map[string]any{"session": session, "key": key})
}

func (s *Neo4jStore) queryFacts(ctx context.Context, sess neo4jSession, query string, params map[string]any) ([]Fact, error) {
	res, err := sess.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("neo4j query facts: %w", err)
	}
	defer res.Close(ctx)
	var out []Fact
	for res.Next(ctx) {
		rec := res.Record()
		out = append(out, Fact{
			Key:        stringValue(rec, "key"),
			Value:      stringValue(rec, "value"),
			Importance: Importance(stringValue(rec, "importance")),
			Step:       int(int64Value(rec, "step")),
			At:         time.Unix(0, int64Value(rec, "at_ns")),
		})
	}
	return out, res.Err()
}

// Close releases the Neo4j driver.
func (s *Neo4jStore) Close() error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(context.Background())
}

func stringValue(rec neo4jRecord, key string) string {
	if rec == nil {
		return ""
	}
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func int64Value(rec neo4jRecord, key string) int64 {
	if rec == nil {
		return 0
	}
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

var _ Store = (*Neo4jStore)(nil)
