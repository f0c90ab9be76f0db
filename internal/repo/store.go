package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness or state constraint.
	ErrConflict = errors.New("conflict")
)

const (
	defaultClusterLimit = 50
	maxTxnRetries       = 64
)

// Key layout. Variable segments are path-escaped so no id can reach into another
// record's prefix. The fingerprint key is the unique index over (tenant, fingerprint).
func seg(s string) string { return url.PathEscape(s) }

func eventKey(tenantID, id string) []byte        { return []byte("event/" + seg(tenantID) + "/" + seg(id)) }
func clusterKey(id string) []byte                { return []byte("cluster/" + seg(id)) }
func tenantClusterPrefix(tenantID string) []byte { return []byte("tcluster/" + seg(tenantID) + "/") }
func fingerprintKey(tenantID, fp string) []byte  { return []byte("fp/" + seg(tenantID) + "/" + seg(fp)) }
func rulePrefix(tenantID string) []byte          { return []byte("rule/" + seg(tenantID) + "/") }
func firedKey(ruleID, clusterID string) []byte   { return []byte("fired/" + seg(ruleID) + "/" + seg(clusterID)) }
func executionKey(id string) []byte              { return []byte("exec/" + seg(id)) }
func clusterExecPrefix(clusterID string) []byte  { return []byte("cexec/" + seg(clusterID) + "/") }
func testKey(id string) []byte                   { return []byte("test/" + seg(id)) }
func analysisPrefix(clusterID string) []byte     { return []byte("analysis/" + seg(clusterID) + "/") }

func tenantClusterKey(tenantID, id string) []byte {
	return append(tenantClusterPrefix(tenantID), seg(id)...)
}

func ruleKey(tenantID, id string) []byte {
	return append(rulePrefix(tenantID), seg(id)...)
}

func clusterExecKey(clusterID string, createdAt time.Time, execID string) []byte {
	return append(clusterExecPrefix(clusterID), fmt.Sprintf("%020d-%s", createdAt.UnixNano(), seg(execID))...)
}

func analysisKey(clusterID string, createdAt time.Time, id string) []byte {
	return append(analysisPrefix(clusterID), fmt.Sprintf("%020d-%s", createdAt.UnixNano(), seg(id))...)
}

// BadgerStore persists every feedback loop record in an embedded Badger database.
type BadgerStore struct {
	db     *badger.DB
	gc     *gcRunner
	logger *slog.Logger
	now    func() time.Time
}

// OpenBadgerStore opens (or creates) the store described by cfg.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &BadgerStore{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = startGC(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
	}
	return s, nil
}

// Close stops background GC and closes the database.
func (s *BadgerStore) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on optimistic commit conflicts.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", err)
}

func (s *BadgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, raw)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanPrefix visits every value under prefix in key order.
func scanPrefix(txn *badger.Txn, prefix []byte, visit func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if err := item.Value(func(val []byte) error { return visit(key, val) }); err != nil {
			return err
		}
	}
	return nil
}

// SaveEvent stores an immutable error event.
func (s *BadgerStore) SaveEvent(ctx context.Context, ev models.ErrorEvent) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		key := eventKey(ev.TenantID, ev.ID)
		found, err := exists(txn, key)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("event %s: %w", ev.ID, ErrConflict)
		}
		return setJSON(txn, key, ev)
	})
}

// GetEvent loads a stored event.
func (s *BadgerStore) GetEvent(ctx context.Context, tenantID, id string) (models.ErrorEvent, error) {
	var ev models.ErrorEvent
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, eventKey(tenantID, id), &ev)
	})
	return ev, err
}

// UpsertCluster merges ev into the cluster owning (tenant, fingerprint), creating it when
// absent. The index read and the writes commit together, so concurrent first occurrences
// conflict at commit and the loser retries as a merge. created reports whether this call
// founded the cluster.
func (s *BadgerStore) UpsertCluster(ctx context.Context, fingerprint string, ev models.ErrorEvent) (cluster models.ErrorCluster, created bool, err error) {
	err = s.update(ctx, func(txn *badger.Txn) error {
		now := s.now()
		indexKey := fingerprintKey(ev.TenantID, fingerprint)
		item, err := txn.Get(indexKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			cluster = models.NewClusterFromEvent(uuid.NewString(), fingerprint, ev, now)
			created = true
			if err := txn.Set(indexKey, []byte(cluster.ID)); err != nil {
				return err
			}
			if err := txn.Set(tenantClusterKey(cluster.TenantID, cluster.ID), []byte(cluster.ID)); err != nil {
				return err
			}
			return setJSON(txn, clusterKey(cluster.ID), cluster)
		case err != nil:
			return err
		}

		clusterID, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		cluster = models.ErrorCluster{}
		created = false
		if err := getJSON(txn, clusterKey(string(clusterID)), &cluster); err != nil {
			return fmt.Errorf("load cluster %s: %w", clusterID, err)
		}
		cluster.Absorb(ev, now)
		return setJSON(txn, clusterKey(cluster.ID), cluster)
	})
	if err != nil {
		return models.ErrorCluster{}, false, err
	}
	return cluster, created, nil
}

// GetCluster loads a cluster by id.
func (s *BadgerStore) GetCluster(ctx context.Context, id string) (models.ErrorCluster, error) {
	var cluster models.ErrorCluster
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, clusterKey(id), &cluster)
	})
	return cluster, err
}

// FindClusterByFingerprint resolves the unique index.
func (s *BadgerStore) FindClusterByFingerprint(ctx context.Context, tenantID, fingerprint string) (models.ErrorCluster, error) {
	var cluster models.ErrorCluster
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(fingerprintKey(tenantID, fingerprint))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, clusterKey(string(id)), &cluster)
	})
	return cluster, err
}

// ListClusters returns a tenant's clusters, most recently seen first.
func (s *BadgerStore) ListClusters(ctx context.Context, filter models.ClusterFilter) ([]models.ErrorCluster, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultClusterLimit
	}
	clusters := make([]models.ErrorCluster, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, tenantClusterPrefix(filter.TenantID), func(_, val []byte) error {
			var cluster models.ErrorCluster
			if err := getJSON(txn, clusterKey(string(val)), &cluster); err != nil {
				return fmt.Errorf("load cluster %s: %w", val, err)
			}
			if filter.Status != "" && cluster.Status != filter.Status {
				return nil
			}
			if filter.Severity != "" && cluster.Severity != filter.Severity {
				return nil
			}
			clusters = append(clusters, cluster)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(clusters, func(a, b models.ErrorCluster) int {
		return b.LastOccurrence.Compare(a.LastOccurrence)
	})
	if len(clusters) > limit {
		clusters = clusters[:limit]
	}
	return clusters, nil
}

// mutateCluster applies fn to a stored cluster inside one transaction.
func (s *BadgerStore) mutateCluster(ctx context.Context, id string, fn func(c *models.ErrorCluster, now time.Time)) (models.ErrorCluster, error) {
	var cluster models.ErrorCluster
	err := s.update(ctx, func(txn *badger.Txn) error {
		cluster = models.ErrorCluster{}
		if err := getJSON(txn, clusterKey(id), &cluster); err != nil {
			return err
		}
		now := s.now()
		fn(&cluster, now)
		cluster.UpdatedAt = now
		return setJSON(txn, clusterKey(id), cluster)
	})
	return cluster, err
}

// UpdateClusterStatus records an operator triage decision.
func (s *BadgerStore) UpdateClusterStatus(ctx context.Context, id string, status models.ClusterStatus) (models.ErrorCluster, error) {
	return s.mutateCluster(ctx, id, func(c *models.ErrorCluster, now time.Time) {
		c.SetStatus(status, now)
	})
}

// LinkRegressionTest back-links a generated test to its cluster.
func (s *BadgerStore) LinkRegressionTest(ctx context.Context, clusterID, testID string) error {
	_, err := s.mutateCluster(ctx, clusterID, func(c *models.ErrorCluster, _ time.Time) {
		c.RegressionTestID = testID
	})
	return err
}

// LinkTicket records the ticket filed for a cluster.
func (s *BadgerStore) LinkTicket(ctx context.Context, clusterID, ticketID string) error {
	_, err := s.mutateCluster(ctx, clusterID, func(c *models.ErrorCluster, _ time.Time) {
		c.JiraTicketID = ticketID
	})
	return err
}

// SaveRule creates or replaces a rule.
func (s *BadgerStore) SaveRule(ctx context.Context, rule models.FeedbackLoopRule) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, ruleKey(rule.TenantID, rule.ID), rule)
	})
}

// ListRules returns every rule of a tenant ordered by creation time.
func (s *BadgerStore) ListRules(ctx context.Context, tenantID string) ([]models.FeedbackLoopRule, error) {
	rules := make([]models.FeedbackLoopRule, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, rulePrefix(tenantID), func(_, val []byte) error {
			var rule models.FeedbackLoopRule
			if err := json.Unmarshal(val, &rule); err != nil {
				return err
			}
			rules = append(rules, rule)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(rules, func(a, b models.FeedbackLoopRule) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return rules, nil
}

// CreateExecution stores a new execution and indexes it under its cluster.
func (s *BadgerStore) CreateExecution(ctx context.Context, exec models.FeedbackLoopExecution) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return insertExecution(txn, exec)
	})
}

// ClaimExecution stores exec only if its rule has not fired for the cluster yet. The
// fired marker and the execution commit in one transaction, so concurrent claimers
// conflict and exactly one wins. claimed is false when the rule already fired.
func (s *BadgerStore) ClaimExecution(ctx context.Context, exec models.FeedbackLoopExecution) (claimed bool, err error) {
	err = s.update(ctx, func(txn *badger.Txn) error {
		key := firedKey(exec.RuleID, exec.ErrorClusterID)
		found, err := exists(txn, key)
		if err != nil {
			return err
		}
		claimed = !found
		if found {
			return nil
		}
		if err := txn.Set(key, []byte(exec.ID)); err != nil {
			return err
		}
		return insertExecution(txn, exec)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func insertExecution(txn *badger.Txn, exec models.FeedbackLoopExecution) error {
	found, err := exists(txn, executionKey(exec.ID))
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("execution %s: %w", exec.ID, ErrConflict)
	}
	if err := txn.Set(clusterExecKey(exec.ErrorClusterID, exec.CreatedAt, exec.ID), []byte(exec.ID)); err != nil {
		return err
	}
	return setJSON(txn, executionKey(exec.ID), exec)
}

// UpdateExecution replaces a running execution. Terminal executions are immutable.
func (s *BadgerStore) UpdateExecution(ctx context.Context, exec models.FeedbackLoopExecution) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var stored models.FeedbackLoopExecution
		if err := getJSON(txn, executionKey(exec.ID), &stored); err != nil {
			return err
		}
		if stored.Status.Terminal() {
			return fmt.Errorf("execution %s already %s: %w", exec.ID, stored.Status, ErrConflict)
		}
		return setJSON(txn, executionKey(exec.ID), exec)
	})
}

// GetExecution loads an execution by id.
func (s *BadgerStore) GetExecution(ctx context.Context, id string) (models.FeedbackLoopExecution, error) {
	var exec models.FeedbackLoopExecution
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, executionKey(id), &exec)
	})
	return exec, err
}

// ListExecutions returns a cluster's executions oldest first.
func (s *BadgerStore) ListExecutions(ctx context.Context, clusterID string) ([]models.FeedbackLoopExecution, error) {
	execs := make([]models.FeedbackLoopExecution, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, clusterExecPrefix(clusterID), func(_, val []byte) error {
			var exec models.FeedbackLoopExecution
			if err := getJSON(txn, executionKey(string(val)), &exec); err != nil {
				return fmt.Errorf("load execution %s: %w", val, err)
			}
			execs = append(execs, exec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return execs, nil
}

// SaveRegressionTest creates or replaces a regression test.
func (s *BadgerStore) SaveRegressionTest(ctx context.Context, test models.RegressionTest) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, testKey(test.ID), test)
	})
}

// GetRegressionTest loads a regression test by id.
func (s *BadgerStore) GetRegressionTest(ctx context.Context, id string) (models.RegressionTest, error) {
	var test models.RegressionTest
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, testKey(id), &test)
	})
	return test, err
}

// ApproveRegressionTest marks a draft test approved. Approving twice keeps the first approver.
func (s *BadgerStore) ApproveRegressionTest(ctx context.Context, id, approvedBy string) (models.RegressionTest, error) {
	var test models.RegressionTest
	err := s.update(ctx, func(txn *badger.Txn) error {
		test = models.RegressionTest{}
		if err := getJSON(txn, testKey(id), &test); err != nil {
			return err
		}
		if test.Status == models.RegressionTestApproved {
			return nil
		}
		test.Status = models.RegressionTestApproved
		test.ApprovedBy = approvedBy
		test.UpdatedAt = s.now()
		return setJSON(txn, testKey(id), test)
	})
	return test, err
}

// SaveAnalysis appends an impact analysis to its cluster's history.
func (s *BadgerStore) SaveAnalysis(ctx context.Context, analysis models.ImpactAnalysis) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, analysisKey(analysis.ErrorClusterID, analysis.CreatedAt, analysis.ID), analysis)
	})
}

// ListAnalyses returns a cluster's analysis history oldest first.
func (s *BadgerStore) ListAnalyses(ctx context.Context, clusterID string) ([]models.ImpactAnalysis, error) {
	analyses := make([]models.ImpactAnalysis, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, analysisPrefix(clusterID), func(_, val []byte) error {
			var analysis models.ImpactAnalysis
			if err := json.Unmarshal(val, &analysis); err != nil {
				return err
			}
			analyses = append(analyses, analysis)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return analyses, nil
}
