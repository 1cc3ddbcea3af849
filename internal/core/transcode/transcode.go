// Package transcode converts text files between character encodings.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/Ning0612/Tidyfs/internal/adapter"
	"github.com/Ning0612/Tidyfs/internal/adapter/local"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/logger"
	"github.com/Ning0612/Tidyfs/internal/progress"
)

// Lookup resolves a WHATWG or IANA encoding name
func Lookup(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", domain.ErrUnsupportedEncoding)
	}

	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedEncoding, name)
	}
	return enc, nil
}

// Codec converts byte slices from one encoding to another
type Codec struct {
	From string
	To   string

	from encoding.Encoding
	to   encoding.Encoding
}

// NewCodec resolves both encodings
func NewCodec(from, to string) (*Codec, error) {
	src, err := Lookup(from)
	if err != nil {
		return nil, err
	}
	dst, err := Lookup(to)
	if err != nil {
		return nil, err
	}
	return &Codec{From: from, To: to, from: src, to: dst}, nil
}

// Convert decodes src and re-encodes it. Bytes that are invalid in the source
// encoding give ErrDecode; characters the target cannot represent give ErrEncode.
func (c *Codec) Convert(src []byte) ([]byte, error) {
	text, err := c.from.NewDecoder().Bytes(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDecode, c.From, err)
	}

	// Decoders substitute U+FFFD for invalid input. A real U+FFFD in the
	// source survives a round trip, a substituted one does not.
	if bytes.ContainsRune(text, utf8.RuneError) {
		back, err := c.from.NewEncoder().Bytes(text)
		if err != nil || !bytes.Equal(back, src) {
			return nil, fmt.Errorf("%w: invalid %s input", domain.ErrDecode, c.From)
		}
	}

	out, err := c.to.NewEncoder().Bytes(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEncode, c.To, err)
	}
	return out, nil
}

// Options configures a Transcoder
type Options struct {
	From string
	To   string

	Logger   logger.Logger
	Reporter progress.Reporter
}

// Transcoder converts files below one root
type Transcoder struct {
	fs    adapter.Adapter
	codec *Codec
	opts  Options
}

// New validates both encodings before any file is touched
func New(fs adapter.Adapter, opts Options) (*Transcoder, error) {
	codec, err := NewCodec(opts.From, opts.To)
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NullReporter{}
	}
	opts.Logger = opts.Logger.With("component", "transcode", "from", opts.From, "to", opts.To)

	return &Transcoder{fs: fs, codec: codec, opts: opts}, nil
}

// Open validates root on the real filesystem and returns a Transcoder
func Open(root string, opts Options) (*Transcoder, error) {
	if _, err := NewCodec(opts.From, opts.To); err != nil {
		return nil, err
	}
	fs, err := local.OpenRoot(afero.NewOsFs(), root)
	if err != nil {
		return nil, err
	}
	return New(fs, opts)
}

// ConvertFile converts path in place, or into output when it is set.
// output must not exist yet.
func (t *Transcoder) ConvertFile(ctx context.Context, path, output string) error {
	rc, err := t.fs.Read(ctx, path)
	if err != nil {
		return err
	}
	src, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return err
	}

	out, err := t.codec.Convert(src)
	if err != nil {
		return err
	}

	if output != "" {
		err = t.fs.Create(ctx, output, bytes.NewReader(out))
	} else {
		err = t.fs.Write(ctx, path, bytes.NewReader(out))
	}
	if err != nil {
		return err
	}

	t.opts.Logger.Debug("converted", "path", path, "output", output, "bytes", len(out))
	return nil
}

// ConvertDir converts every regular file directly inside dir in place.
// Subdirectories are not entered.
func (t *Transcoder) ConvertDir(ctx context.Context, dir string) (domain.Tally, error) {
	start := time.Now()

	entries, err := t.fs.List(ctx, dir)
	if err != nil {
		return domain.Tally{}, err
	}

	var tally domain.Tally
	for _, e := range entries {
		if !e.IsFile() {
			continue
		}
		tally.Scanned++

		if err := ctx.Err(); err != nil {
			tally.RecordFailure(e.Path, err.Error())
			t.opts.Reporter.Step(e.Path, false)
			continue
		}

		if err := t.ConvertFile(ctx, e.Path, ""); err != nil {
			reason := failureReason(e.Path, err)
			t.opts.Logger.Warn("conversion failed", "path", e.Path, "reason", reason)
			tally.RecordFailure(e.Path, reason)
			t.opts.Reporter.Step(e.Path, false)
			continue
		}
		tally.RecordSuccess()
		t.opts.Reporter.Step(e.Path, true)
	}

	tally.Elapsed = time.Since(start)
	t.opts.Logger.Info("conversion finished",
		"dir", filepath.Join(t.fs.Root(), dir),
		"converted", tally.Successes,
		"failed", tally.Failures,
	)
	return tally, nil
}

// failureReason reports codec errors verbatim since they name their own kind
func failureReason(path string, err error) string {
	if errors.Is(err, domain.ErrDecode) || errors.Is(err, domain.ErrEncode) {
		return err.Error()
	}
	return domain.NewPerFileError(path, domain.ErrOSFailure, err).Reason()
}
