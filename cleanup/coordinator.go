package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/basketmesh/catalog"
	"github.com/hupe1980/basketmesh/core"
	"github.com/hupe1980/basketmesh/engine"
	"github.com/hupe1980/basketmesh/invoker"
	"github.com/hupe1980/basketmesh/logging"
	"github.com/hupe1980/basketmesh/telemetry"
)

// Summary reports what a basket deletion touched. Errors holds the failures
// of individual cleanup sub-steps; a non-empty list still means the basket
// definition itself is gone.
type Summary struct {
	BasketName       string    `json:"basket_name"`
	FilesDeleted     int       `json:"files_deleted"`
	EphemeralCleaned int       `json:"ephemeral_cleaned"`
	DurableCleaned   int       `json:"durable_cleaned"`
	Errors           []string  `json:"errors,omitempty"`
	DeletedAt        time.Time `json:"deleted_at"`
}

// Options configures a Coordinator.
type Options struct {
	// LogDir is the root under which engine run logs were written. Empty
	// disables file cleanup.
	LogDir string

	// Invoker purges retained session state for the basket's executions.
	// Optional.
	Invoker *invoker.Invoker

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Coordinator performs cascading basket deletions across the catalog, both
// telemetry stores and the run log directory.
type Coordinator struct {
	catalog *catalog.Catalog
	sink    *telemetry.Sink
	logDir  string
	invoker *invoker.Invoker
	logger  logging.Logger
}

// New creates a deletion coordinator over the catalog and telemetry sink.
func New(cat *catalog.Catalog, sink *telemetry.Sink, optFns ...func(o *Options)) *Coordinator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Coordinator{
		catalog: cat,
		sink:    sink,
		logDir:  opts.LogDir,
		invoker: opts.Invoker,
		logger:  opts.Logger,
	}
}

// DeleteBasket removes the named basket and everything it left behind. It
// returns core.ErrBasketNotFound only when neither the catalog nor the
// durable store knows the name; otherwise the summary describes the cascade,
// including any sub-step failures.
func (c *Coordinator) DeleteBasket(ctx context.Context, name string) (*Summary, error) {
	sum := &Summary{BasketName: name, DeletedAt: time.Now().UTC()}

	def, inCatalog := c.catalog.GetBasket(name)
	inDurable := c.deleteDurableBasket(ctx, name, sum)
	if !inCatalog && !inDurable {
		return nil, fmt.Errorf("basket %q: %w", name, core.ErrBasketNotFound)
	}
	if inCatalog {
		c.catalog.RemoveBasket(name)
	}

	executionIDs := c.sink.ExecutionsForBasket(ctx, name)
	agents := def.Agents
	if len(agents) == 0 {
		agents = c.agentsFromLogs(ctx, executionIDs)
	}

	c.cleanEphemeral(ctx, name, executionIDs, agents, sum)
	c.cleanDurable(ctx, name, executionIDs, sum)
	c.cleanFiles(name, sum)
	c.purgeSessions(agents, executionIDs, sum)

	c.sink.RecordDeletion(ctx, core.Payload{
		"basket_name":       sum.BasketName,
		"files_deleted":     sum.FilesDeleted,
		"ephemeral_cleaned": sum.EphemeralCleaned,
		"durable_cleaned":   sum.DurableCleaned,
		"errors":            sum.Errors,
		"deleted_at":        sum.DeletedAt.Format(time.RFC3339),
	})

	c.logger.Info("basket deleted",
		"basket", name,
		"executions", len(executionIDs),
		"files_deleted", sum.FilesDeleted,
		"ephemeral_cleaned", sum.EphemeralCleaned,
		"durable_cleaned", sum.DurableCleaned,
		"errors", len(sum.Errors))

	return sum, nil
}

// deleteDurableBasket removes the persisted basket definition and reports
// whether the durable store knew the name.
func (c *Coordinator) deleteDurableBasket(ctx context.Context, name string, sum *Summary) bool {
	audit := c.sink.Audit()
	if audit == nil {
		return false
	}
	n, err := audit.DeleteBasket(ctx, name)
	if err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("durable basket delete: %v", err))
		return false
	}
	sum.DurableCleaned += int(n)
	return n > 0
}

// agentsFromLogs recovers the agent names a basket touched when the
// definition is no longer in the catalog, by scanning each execution's logs.
func (c *Coordinator) agentsFromLogs(ctx context.Context, executionIDs []string) []string {
	seen := map[string]bool{}
	var agents []string
	for _, id := range executionIDs {
		recs, err := c.sink.ExecutionLogs(ctx, id, telemetry.MaxLimit)
		if err != nil {
			continue
		}
		for _, rec := range recs {
			if rec.Agent != "" && !seen[rec.Agent] {
				seen[rec.Agent] = true
				agents = append(agents, rec.Agent)
			}
		}
	}
	return agents
}

func (c *Coordinator) cleanEphemeral(ctx context.Context, name string, executionIDs, agents []string, sum *Summary) {
	kv := c.sink.KV()
	if kv == nil {
		return
	}
	if err := kv.Ping(ctx); err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("ephemeral store unreachable: %v", err))
		return
	}

	var keys []string
	for _, id := range executionIDs {
		keys = append(keys, telemetry.ExecutionLogsKey(id))
		for _, agent := range agents {
			keys = append(keys,
				telemetry.OutputKey(id, agent),
				telemetry.AgentStateKey(agent, id))
		}
	}
	keys = append(keys, telemetry.BasketExecutionsKey(name))
	if prefixed, err := kv.Keys(ctx, telemetry.BasketKeyPrefix(name)); err == nil {
		keys = append(keys, prefixed...)
	} else {
		sum.Errors = append(sum.Errors, fmt.Sprintf("ephemeral key scan: %v", err))
	}

	n, err := kv.Delete(ctx, keys...)
	if err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("ephemeral delete: %v", err))
		return
	}
	sum.EphemeralCleaned += n
}

func (c *Coordinator) cleanDurable(ctx context.Context, name string, executionIDs []string, sum *Summary) {
	audit := c.sink.Audit()
	if audit == nil {
		return
	}
	if n, err := audit.DeleteLogsForExecutions(ctx, executionIDs); err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("durable log delete: %v", err))
	} else {
		sum.DurableCleaned += int(n)
	}
	if n, err := audit.DeleteExecutions(ctx, name); err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("durable execution delete: %v", err))
	} else {
		sum.DurableCleaned += int(n)
	}
}

// cleanFiles removes the per-run log artifacts written by the engine.
func (c *Coordinator) cleanFiles(name string, sum *Summary) {
	if c.logDir == "" {
		return
	}
	pattern := filepath.Join(c.logDir, engine.RunLogDirName, name+"_*.log")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("log file scan: %v", err))
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("log file delete %s: %v", filepath.Base(path), err))
			continue
		}
		sum.FilesDeleted++
	}
}

func (c *Coordinator) purgeSessions(agents, executionIDs []string, sum *Summary) {
	if c.invoker == nil {
		return
	}
	for _, id := range executionIDs {
		sum.EphemeralCleaned += c.invoker.PurgeSession(agents, id)
	}
}
