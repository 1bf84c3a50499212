// Binary promo-ingest bulk-loads promotion codes from partner code dumps.
// Partners each export a gzipped list of single-use codes; a code is trusted
// only when at least two independent dumps agree on it. The dumps are far too
// large to hold in memory, so the tool makes two streaming passes: the first
// builds one bloom filter per file, the second re-streams each file and keeps
// codes that other files' filters also claim to contain.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/montebay/storefront/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
	insertBatch   = 1000
)

// fileResult holds candidate codes found in a single file during pass 2.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
		promotionID string
		codeLimit   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing codebatchN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&promotionID, "promotion-id", "", "promotion to attach ingested codes to (must exist)")
	flag.IntVar(&codeLimit, "code-limit", 1, "per-code usage limit (0 for unlimited)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if promotionID == "" {
		slog.Error("promotion ID is required: set --promotion-id")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, promotionID, codeLimit); err != nil {
		slog.Error("promo code ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo code ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL, promotionID string, codeLimit int) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("codebatch%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: Build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", numFiles))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Find candidate codes appearing in 2+ files.
	slog.Info("pass 2: finding candidate codes")

	validCodes, err := findValidCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	slog.Info("valid codes found", slog.Int("count", len(validCodes)))

	if len(validCodes) == 0 {
		slog.Info("no valid codes to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeCodes(ctx, pool, promotionID, codeLimit, validCodes); err != nil {
		return errors.Wrap(err, "write codes to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) >= minCodeLen && len(code) <= maxCodeLen {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("file", idx+1),
						slog.Uint64("codes", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findValidCodes re-streams each file and checks codes against OTHER files'
// bloom filters. A code is valid if it appears in 2 or more files.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all files.
	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	// Keep codes appearing in 2+ files.
	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}

	return valid, nil
}

func findCandidatesInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("file", idx+1),
					slog.Uint64("codes", count),
				)
			}

			// Check if this code appears in any OTHER file's bloom filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					candidates[code] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

const (
	checkPromotionSQL = `SELECT EXISTS (SELECT 1 FROM promotions WHERE id = $1)`

	upsertCodeSQL = `INSERT INTO promotion_codes (code, promotion_id, usage_limit, active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (code) DO UPDATE SET
    promotion_id = EXCLUDED.promotion_id,
    usage_limit = EXCLUDED.usage_limit,
    active = TRUE`
)

// writeCodes upserts all valid codes in batches, attached to the promotion.
func writeCodes(ctx context.Context, pool *pgxpool.Pool, promotionID string, codeLimit int, codes []string) error {
	var exists bool
	if err := pool.QueryRow(ctx, checkPromotionSQL, promotionID).Scan(&exists); err != nil {
		return errors.Wrap(err, "check promotion")
	}
	if !exists {
		return errors.Errorf("promotion %s does not exist", promotionID)
	}

	slog.Info("writing codes to database",
		slog.Int("count", len(codes)), slog.String("promotion_id", promotionID))

	for start := 0; start < len(codes); start += insertBatch {
		end := min(start+insertBatch, len(codes))

		batch := &pgx.Batch{}
		for _, code := range codes[start:end] {
			batch.Queue(upsertCodeSQL, strings.ToUpper(code), promotionID, codeLimit)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "upsert batch at offset %d", start)
		}

		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(codes)))
	}

	return nil
}
