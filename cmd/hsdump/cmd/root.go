package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ssargent/hstabledb/pkg/codec"
	"github.com/ssargent/hstabledb/pkg/config"
	"github.com/ssargent/hstabledb/pkg/pool"
	"github.com/ssargent/hstabledb/pkg/store"
)

type ctxKey string

const engineCtxKey ctxKey = "engine"

var dataDir string

var segmentFileRE = regexp.MustCompile(`^(\d{10})\.kdb$`)

// rootCmd is hsdump: a read-only inspection tool over an HSTable database
// directory. It never writes to the directory; every subcommand opens the
// engine's read-only facade over whatever segments are already sealed there.
var rootCmd = &cobra.Command{
	Use:   "hsdump",
	Short: "Read-only inspection tool for HSTable database directories",
	Long: `hsdump opens an HSTable database directory and lets you look inside
it: point lookups, full scans, and per-segment format details. It never
writes to the directory.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(dataDir)
		if err != nil {
			return err
		}
		cmd.SetContext(context.WithValue(cmd.Context(), engineCtxKey, e))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "./data", "HSTable database directory")
}

// openEngine opens dataDir's config (if present; falls back to defaults)
// and indexes every segment file already sealed there, in ascending
// file-id order, to preserve the global index's monotone ordering.
func openEngine(dataDir string) (*store.Engine, error) {
	cfg := config.DefaultConfig()
	configPath := filepath.Join(dataDir, "options.kdb")
	if config.ConfigExists(configPath) {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", configPath, err)
		}
		cfg = loaded
	}

	compressor, err := cfg.Compressor()
	if err != nil {
		return nil, fmt.Errorf("resolving compressor: %w", err)
	}

	e := store.NewEngine(dataDir, prometheus.NewRegistry())
	e.SetCompressor(compressor)

	fileIDs, err := discoverSegments(dataDir)
	if err != nil {
		return nil, err
	}
	if err := indexSegments(e, fileIDs, cfg.Pool); err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "hsdump: indexed %d keys across %d segments\n", e.IndexedKeyCount(), len(fileIDs))
	return e, nil
}

// scanResult pairs a file-id with the outcome of scanning it, so the pool's
// workers (which may finish out of order) can report back without racing
// each other or the engine's index.
type scanResult struct {
	fileID uint32
	fi     *codec.FileIndex
	err    error
}

// scanTask is a pool.Task that scans one segment file. RunInLock is a no-op:
// scanning touches nothing pool-wide, only the task's own result slot.
type scanTask struct {
	e      *store.Engine
	fileID uint32
	out    chan<- scanResult
}

func (t *scanTask) RunInLock(workerID int) {}

func (t *scanTask) Run(workerID int, taskID uint64) {
	fi, err := t.e.ScanFile(t.fileID)
	t.out <- scanResult{fileID: t.fileID, fi: fi, err: err}
}

// indexSegments scans every discovered segment file through a worker pool
// (the expensive, I/O-bound half of indexing) and then merges the results
// into the engine's global index sequentially, in ascending file-id order,
// to preserve GlobalIndex's monotone ordering invariant. A segment that
// fails to scan is logged and skipped, matching openEngine's prior
// best-effort behavior.
//
// The queue is sized to hold every file-id at once, so every AddTask below
// returns immediately; the pool only needs to outlive the one blocking
// step, draining exactly len(fileIDs) results back.
func indexSegments(e *store.Engine, fileIDs []uint32, cfg config.Pool) error {
	if len(fileIDs) == 0 {
		return nil
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < len(fileIDs) {
		queueSize = len(fileIDs)
	}

	p := pool.New(queueSize)
	p.Start(workers)
	defer p.Stop()

	results := make(chan scanResult, len(fileIDs))
	for _, id := range fileIDs {
		if err := p.AddTask(context.Background(), &scanTask{e: e, fileID: id, out: results}); err != nil {
			results <- scanResult{fileID: id, err: err}
		}
	}

	byFileID := make(map[uint32]*codec.FileIndex, len(fileIDs))
	for range fileIDs {
		res := <-results
		if res.err != nil {
			fmt.Fprintf(os.Stderr, "hsdump: skipping segment %010d.kdb: %v\n", res.fileID, res.err)
			continue
		}
		byFileID[res.fileID] = res.fi
	}

	for _, id := range fileIDs {
		if fi, ok := byFileID[id]; ok {
			e.MergeFile(fi)
		}
	}
	return nil
}

// discoverSegments lists every <10-digit-file-id>.kdb file in dataDir, in
// ascending file-id order.
func discoverSegments(dataDir string) ([]uint32, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading data dir: %w", err)
	}

	var ids []uint32
	for _, entry := range entries {
		m := segmentFileRE.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		id, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func engineFromContext(cmd *cobra.Command) *store.Engine {
	return cmd.Context().Value(engineCtxKey).(*store.Engine)
}
