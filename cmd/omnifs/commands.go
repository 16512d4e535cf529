package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/config"
	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/marmos91/omnifs/pkg/stream"
	"github.com/urfave/cli/v2"
)

// copyChunk is the read size used when streaming between handles.
const copyChunk = 64 * 1024

func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() != n {
		return fmt.Errorf("usage: omnifs %s %s", c.Command.Name, usage)
	}
	return nil
}

// ============================================================================
// ls
// ============================================================================

func lsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List a directory",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "list the whole tree"},
			&cli.BoolFlag{Name: "long", Aliases: []string{"l"}, Usage: "show size, visibility and modification time"},
			&cli.StringFlag{Name: "match", Usage: "only show entries whose path matches a glob (e.g. '**/*.csv')"},
		},
		Action: withEnv(func(ctx context.Context, c *cli.Context, e *env) error {
			if err := requireArgs(c, 1, "<url>"); err != nil {
				return err
			}
			url := c.Args().First()

			pattern := c.String("match")
			if pattern != "" && !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("invalid --match pattern %q", pattern)
			}

			// Plain listings go through the directory handle like any
			// other stream client.
			if !c.Bool("recursive") && !c.Bool("long") && pattern == "" {
				return listNames(ctx, e.bridge, url, e.out)
			}
			return listStats(ctx, e, url, c.Bool("recursive"), c.Bool("long"), pattern)
		}),
	}
}

func listNames(ctx context.Context, b *stream.Bridge, url string, out io.Writer) error {
	dir, err := b.OpenDir(ctx, url)
	if err != nil {
		return err
	}
	defer dir.Close()

	for {
		name, ok, err := dir.ReadDir()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		fmt.Fprintln(out, name)
	}
}

func listStats(ctx context.Context, e *env, url string, deep, long bool, pattern string) error {
	entry, raw, err := e.registry.Resolve(url)
	if err != nil {
		return err
	}
	path, err := storage.NormalizePath(raw)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	for stat, err := range entry.Adapter.List(ctx, path, deep).All() {
		if err != nil {
			return err
		}

		name := stat.Path()
		if pattern != "" {
			matched, err := doublestar.Match(pattern, name)
			if err != nil {
				return err
			}
			if !matched {
				continue
			}
		}
		if stat.IsDir() {
			name += "/"
		}

		if !long {
			fmt.Fprintln(w, name)
			continue
		}

		vis, err := stat.Visibility(ctx)
		if err != nil {
			if !entry.Options.IgnoreVisibilityErrors {
				return err
			}
			vis = storage.Public
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", vis, stat.Size(), stat.LastModified().Format(time.RFC3339), name)
	}
	return nil
}

// ============================================================================
// cat / put / cp
// ============================================================================

func catCommand() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "Print the content of a file",
		ArgsUsage: "<url>",
		Action: withEnv(func(ctx context.Context, c *cli.Context, e *env) error {
			if err := requireArgs(c, 1, "<url>"); err != nil {
				return err
			}

			h, err := e.bridge.Open(ctx, c.Args().First(), "rb")
			if err != nil {
				return err
			}
			defer func() { _ = h.Close(ctx) }()

			return drain(h, e.out)
		}),
	}
}

func putCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "Upload a local file (or stdin with '-')",
		ArgsUsage: "<local-file|-> <url>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "append", Aliases: []string{"a"}, Usage: "append instead of replacing"},
			&cli.BoolFlag{Name: "exclusive", Aliases: []string{"x"}, Usage: "fail if the destination exists"},
		},
		Action: withEnv(func(ctx context.Context, c *cli.Context, e *env) error {
			if err := requireArgs(c, 2, "<local-file|-> <url>"); err != nil {
				return err
			}

			var src io.Reader = os.Stdin
			if name := c.Args().Get(0); name != "-" {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				src = f
			}

			mode := "wb"
			switch {
			case c.Bool("append"):
				mode = "ab"
			case c.Bool("exclusive"):
				mode = "xb"
			}

			h, err := e.bridge.Open(ctx, c.Args().Get(1), mode)
			if err != nil {
				return err
			}
			n, err := fill(ctx, h, src)
			if err != nil {
				_ = h.Close(ctx)
				return err
			}
			if err := h.Close(ctx); err != nil {
				return err
			}
			logger.Info("Wrote %d bytes to %s", n, h.URL())
			return nil
		}),
	}
}

func cpCommand() *cli.Command {
	return &cli.Command{
		Name:      "cp",
		Usage:     "Copy a file, possibly across protocols",
		ArgsUsage: "<src-url> <dst-url>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite an existing destination"},
		},
		Action: withEnv(func(ctx context.Context, c *cli.Context, e *env) error {
			if err := requireArgs(c, 2, "<src-url> <dst-url>"); err != nil {
				return err
			}
			src, dst := c.Args().Get(0), c.Args().Get(1)

			// Within one protocol the adapter copies natively.
			srcEntry, srcPath, err := e.registry.Resolve(src)
			if err != nil {
				return err
			}
			dstEntry, dstPath, err := e.registry.Resolve(dst)
			if err != nil {
				return err
			}
			if srcEntry == dstEntry {
				return srcEntry.Adapter.Copy(ctx, srcPath, dstPath, storage.WriteOptions{Overwrite: c.Bool("force")})
			}

			mode := "xb"
			if c.Bool("force") {
				mode = "wb"
			}

			in, err := e.bridge.Open(ctx, src, "rb")
			if err != nil {
				return err
			}
			defer func() { _ = in.Close(ctx) }()

			out, err := e.bridge.Open(ctx, dst, mode)
			if err != nil {
				return err
			}
			if _, err := fill(ctx, out, handleReader{in}); err != nil {
				_ = out.Close(ctx)
				return err
			}
			return out.Close(ctx)
		}),
	}
}

// drain copies everything readable from h to w.
func drain(h *stream.Handle, w io.Writer) error {
	for {
		data, err := h.Read(copyChunk)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
}

// fill writes everything from r into h.
func fill(ctx context.Context, h *stream.Handle, r io.Reader) (int64, error) {
	buf := make([]byte, copyChunk)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			written, werr := h.Write(ctx, buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// handleReader adapts a read handle to io.Reader.
type handleReader struct {
	h *stream.Handle
}

func (r handleReader) Read(p []byte) (int, error) {
	data, err := r.h.Read(len(p))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ============================================================================
// mv / rm / mkdir / stat
// ============================================================================

func mvCommand() *cli.Command {
	return &cli.Command{
		Name:      "mv",
		Usage:     "Move a file, possibly across protocols",
		ArgsUsage: "<src-url> <dst-url>",
		Action: withEnv(func(ctx context.Context, c *cli.Context, e *env) error {
			if err := requireArgs(c, 2, "<src-url> <dst-url>"); err != nil {
				return err
			}
			return e.bridge.Rename(ctx, c.Args().Get(0), c.Args().Get(1))
		}),
	}
}

func rmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Remove a file, or a directory with -r",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "remove a directory and its content"},
		},
		Action: withEnv(func(ctx context.Context, c *cli.Context, e *env) error {
			if err := requireArgs(c, 1, "<url>"); err != nil {
				return err
			}
			url := c.Args().First()

			st, err := e.bridge.URLStat(ctx, url, true)
			if err != nil {
				return err
			}
			if !st.IsDir() {
				return e.bridge.Unlink(ctx, url)
			}
			if !c.Bool("recursive") {
				return e.bridge.Rmdir(ctx, url)
			}

			entry, path, err := e.registry.Resolve(url)
			if err != nil {
				return err
			}
			return entry.Adapter.DeleteDirectory(ctx, path)
		}),
	}
}

func mkdirCommand() *cli.Command {
	return &cli.Command{
		Name:      "mkdir",
		Usage:     "Create a directory",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "parents", Aliases: []string{"p"}, Usage: "create missing parents"},
		},
		Action: withEnv(func(ctx context.Context, c *cli.Context, e *env) error {
			if err := requireArgs(c, 1, "<url>"); err != nil {
				return err
			}
			return e.bridge.Mkdir(ctx, c.Args().First(), c.Bool("parents"))
		}),
	}
}

func statCommand() *cli.Command {
	return &cli.Command{
		Name:      "stat",
		Usage:     "Describe a file or directory",
		ArgsUsage: "<url>",
		Action: withEnv(func(ctx context.Context, c *cli.Context, e *env) error {
			if err := requireArgs(c, 1, "<url>"); err != nil {
				return err
			}
			url := c.Args().First()

			st, err := e.bridge.URLStat(ctx, url, false)
			if err != nil {
				return err
			}

			kind := "file"
			if st.IsDir() {
				kind = "directory"
			}
			fmt.Fprintf(e.out, "  URL: %s\n", url)
			fmt.Fprintf(e.out, " Type: %s\n", kind)
			fmt.Fprintf(e.out, " Size: %d\n", st.Size)
			fmt.Fprintf(e.out, " Mode: %06o\n", st.Mode)
			fmt.Fprintf(e.out, "  Uid: %d  Gid: %d\n", st.UID, st.GID)
			fmt.Fprintf(e.out, "Mtime: %s\n", st.Mtime.Format(time.RFC3339))
			return nil
		}),
	}
}

func protocolsCommand() *cli.Command {
	return &cli.Command{
		Name:  "protocols",
		Usage: "List the configured protocols",
		Action: withEnv(func(_ context.Context, _ *cli.Context, e *env) error {
			w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
			for _, s := range e.cfg.Storages {
				fmt.Fprintf(w, "%s://\t%s\t%s\n", s.Protocol, s.Type, s.Name)
			}
			return w.Flush()
		}),
	}
}

// ============================================================================
// init / metrics
// ============================================================================

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a sample configuration file",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite an existing file"},
			&cli.StringFlag{Name: "path", Usage: "write to this path instead of the default location"},
		},
		Action: func(c *cli.Context) error {
			path := c.String("path")
			if path == "" {
				path = config.GetDefaultConfigPath()
			}
			if err := config.InitConfigToPath(path, c.Bool("force")); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Configuration written to %s\n", path)
			return nil
		},
	}
}

func metricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Serve the Prometheus endpoint until interrupted",
		Action: withEnv(func(ctx context.Context, _ *cli.Context, e *env) error {
			server := e.metricsServer()
			if server == nil {
				return errors.New("metrics are disabled, set metrics.enabled in the configuration")
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("Serving metrics for %s", strings.Join(e.registry.Protocols(), ", "))
			return server.Start(ctx)
		}),
	}
}
