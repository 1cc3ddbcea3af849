// Package hashname renames every file below a directory to a salted hash of
// its path, keeping the extension.
package hashname

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Ning0612/Tidyfs/internal/adapter"
	"github.com/Ning0612/Tidyfs/internal/adapter/local"
	"github.com/Ning0612/Tidyfs/internal/core/checksum"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/logger"
	"github.com/Ning0612/Tidyfs/internal/progress"
)

// MinSaltBytes is the smallest salt accepted
const MinSaltBytes = 16

// Options configures a Renamer. Zero values fall back to the defaults.
type Options struct {
	Algorithm checksum.Algorithm
	SaltBytes int

	// Workers > 1 renames files in parallel
	Workers int

	// RetryOnCollision allows one more attempt with a fresh salt
	RetryOnCollision bool

	Addresser checksum.Addresser
	Clock     func() time.Time
	Rand      io.Reader
	Logger    logger.Logger
	Reporter  progress.Reporter
}

// DefaultOptions returns sha1, 16 salt bytes and a single worker
func DefaultOptions() Options {
	return Options{
		Algorithm: checksum.DefaultAlgorithm,
		SaltBytes: MinSaltBytes,
		Workers:   1,
	}
}

// Renamer runs the hash rename batch over one root
type Renamer struct {
	fs   adapter.Adapter
	opts Options

	randMu  sync.Mutex
	tallyMu sync.Mutex
}

// New creates a Renamer over fs. An unknown algorithm fails here, before
// any file is touched.
func New(fs adapter.Adapter, opts Options) (*Renamer, error) {
	if fs == nil {
		return nil, fmt.Errorf("%w: nil filesystem", domain.ErrInvalidArgument)
	}
	if opts.Algorithm == "" {
		opts.Algorithm = checksum.DefaultAlgorithm
	}
	if !checksum.IsSupported(opts.Algorithm) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, string(opts.Algorithm))
	}
	if opts.SaltBytes == 0 {
		opts.SaltBytes = MinSaltBytes
	}
	if opts.SaltBytes < MinSaltBytes {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes, got %d",
			domain.ErrInvalidArgument, MinSaltBytes, opts.SaltBytes)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Addresser == nil {
		opts.Addresser = checksum.NewDefaultCalculator()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NullReporter{}
	}
	opts.Logger = opts.Logger.With("component", "hashname")

	return &Renamer{fs: fs, opts: opts}, nil
}

// Open validates root on the real filesystem and returns a Renamer over it
func Open(root string, opts Options) (*Renamer, error) {
	fs, err := local.OpenRoot(afero.NewOsFs(), root)
	if err != nil {
		return nil, err
	}
	return New(fs, opts)
}

// Scan lists every regular file under root. Root problems match
// domain.ErrInvalidArgument.
func Scan(ctx context.Context, root string) ([]domain.FileRecord, error) {
	fs, err := local.OpenRoot(afero.NewOsFs(), root)
	if err != nil {
		return nil, err
	}
	return scan(ctx, fs)
}

// RunBatch opens root and renames every file under it
func RunBatch(ctx context.Context, root string, opts Options) (domain.Tally, error) {
	r, err := Open(root, opts)
	if err != nil {
		return domain.Tally{}, err
	}
	return r.RunBatch(ctx)
}

// Root returns the directory this Renamer works on
func (r *Renamer) Root() string {
	return r.fs.Root()
}

// Scan lists every regular file under the root as absolute paths
func (r *Renamer) Scan(ctx context.Context) ([]domain.FileRecord, error) {
	return scan(ctx, r.fs)
}

func scan(ctx context.Context, fs adapter.Adapter) ([]domain.FileRecord, error) {
	files, err := fs.Walk(ctx, "", nil)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan %s: %w", domain.ErrInvalidArgument, fs.Root(), err)
	}

	records := make([]domain.FileRecord, 0, len(files))
	for _, f := range files {
		records = append(records, domain.FileRecord{Path: f.Path, Size: f.Size})
	}
	return records, nil
}

// ComputeHashName returns the new base name for path: the hex digest of
// path + timestamp + salt, followed by the original extension.
func (r *Renamer) ComputeHashName(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", domain.ErrInvalidArgument)
	}
	info, err := r.fs.Stat(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrInvalidArgument, path, err)
	}
	if !info.IsFile() {
		return "", fmt.Errorf("%w: %s is not a regular file", domain.ErrInvalidArgument, path)
	}

	key, err := r.newKey(info.Path)
	if err != nil {
		return "", err
	}

	digest, err := r.opts.Addresser.Hash(r.opts.Algorithm, key.Payload())
	if err != nil {
		return "", err
	}

	return strings.ToLower(digest) + Extension(info.Path), nil
}

func (r *Renamer) newKey(path string) (domain.RenameKey, error) {
	salt := make([]byte, r.opts.SaltBytes)

	r.randMu.Lock()
	_, err := io.ReadFull(r.opts.Rand, salt)
	r.randMu.Unlock()
	if err != nil {
		return domain.RenameKey{}, fmt.Errorf("read salt: %w", err)
	}

	return domain.RenameKey{
		Path:      path,
		Timestamp: r.opts.Clock().Format(domain.TimestampLayout),
		Salt:      hex.EncodeToString(salt),
		Algorithm: string(r.opts.Algorithm),
	}, nil
}

// RenameToHash renames path to its hash name in the same directory and
// returns the new path. It never overwrites: an existing target fails with
// domain.ErrNameCollision. Every failure is a *domain.PerFileError.
func (r *Renamer) RenameToHash(ctx context.Context, path string) (string, error) {
	attempts := 1
	if r.opts.RetryOnCollision {
		attempts = 2
	}

	var target string
	for attempt := 1; attempt <= attempts; attempt++ {
		name, err := r.ComputeHashName(ctx, path)
		if err != nil {
			return "", r.fail(path, classify(err), err)
		}

		target = filepath.Join(filepath.Dir(path), name)
		err = r.fs.RenameNoReplace(ctx, path, target)
		if err == nil {
			r.opts.Logger.Debug("renamed", "path", path, "target", target)
			return target, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return "", r.fail(path, domain.ErrOSFailure, err)
		}
		r.opts.Logger.Debug("target exists", "path", path, "target", target, "attempt", attempt)
	}

	return "", r.fail(path, domain.ErrNameCollision, fmt.Errorf("%s exists", filepath.Base(target)))
}

func (r *Renamer) fail(path string, kind, cause error) error {
	pfe := domain.NewPerFileError(path, kind, cause)
	r.opts.Logger.Warn("rename failed", "path", path, "reason", pfe.Reason())
	return pfe
}

// classify sorts a ComputeHashName error: a file that vanished or became
// unreadable since the scan is an OS failure, anything else keeps its kind.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrNotDirectory):
		return domain.ErrOSFailure
	case errors.Is(err, domain.ErrUnsupportedAlgorithm):
		return domain.ErrUnsupportedAlgorithm
	case errors.Is(err, domain.ErrInvalidArgument):
		return domain.ErrInvalidArgument
	default:
		return domain.ErrOSFailure
	}
}

// RunBatch scans the root and renames every file. Only a scan failure is
// returned as an error; per-file failures land in the tally.
//
// With one worker files are renamed in scan order. Once ctx is cancelled no
// new file is started and the rest are recorded as failed.
func (r *Renamer) RunBatch(ctx context.Context) (domain.Tally, error) {
	start := time.Now()

	records, err := r.Scan(ctx)
	if err != nil {
		return domain.Tally{}, err
	}

	tally := domain.Tally{Scanned: len(records)}
	r.opts.Reporter.SetTotal(len(records), 0)
	r.opts.Logger.Info("batch started", "root", r.fs.Root(), "files", len(records), "workers", r.opts.Workers)

	g := new(errgroup.Group)
	g.SetLimit(r.opts.Workers)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			r.record(&tally, rec.Path, domain.NewPerFileError(rec.Path, err, nil))
			continue
		}

		path := rec.Path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				r.record(&tally, path, domain.NewPerFileError(path, err, nil))
				return nil
			}
			_, err := r.RenameToHash(ctx, path)
			r.record(&tally, path, err)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(tally.Failed, func(i, j int) bool {
		return tally.Failed[i].Path < tally.Failed[j].Path
	})
	tally.Elapsed = time.Since(start)

	r.opts.Logger.Info("batch finished",
		"root", r.fs.Root(),
		"scanned", tally.Scanned,
		"successes", tally.Successes,
		"failures", tally.Failures,
		"elapsed", tally.Elapsed,
	)
	return tally, nil
}

func (r *Renamer) record(tally *domain.Tally, path string, err error) {
	r.tallyMu.Lock()
	defer r.tallyMu.Unlock()

	if err == nil {
		tally.RecordSuccess()
		r.opts.Reporter.Step(path, true)
		return
	}

	reason := err.Error()
	var pfe *domain.PerFileError
	if errors.As(err, &pfe) {
		reason = pfe.Reason()
	}
	tally.RecordFailure(path, reason)
	r.opts.Reporter.Step(path, false)
}

// Extension returns the suffix from the last dot of the base name, dot
// included. Leading dots do not start an extension (".bashrc" has none).
func Extension(path string) string {
	_, ext := domain.SplitExt(filepath.Base(path))
	return ext
}
