package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/teenjuna/edi"
	"github.com/teenjuna/edi/archive"
	"github.com/teenjuna/edi/internal/log"
)

const version = "0.1.0"

func New() *cli.Command {
	return &cli.Command{
		Name:    "edi",
		Usage:   "decode X12 EDI documents",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "minimum log level (debug, info, warn, error)",
				Value: "warn",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "also write logs to this rotating file",
			},
		},
		Commands: []*cli.Command{
			delimsCommand(),
			segmentsCommand(),
			statCommand(),
			archiveCommand(),
		},
	}
}

func documentFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "line-breaks",
			Usage: "ignore line breaks after segment terminators",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "read-repetition",
			Usage: "take the repetition separator from ISA11",
			Value: true,
		},
	}
}

func delimsCommand() *cli.Command {
	return &cli.Command{
		Name:      "delims",
		Usage:     "print the delimiters declared by the ISA header",
		ArgsUsage: "<file>",
		Flags:     documentFlags(),
		Action:    delimsAction,
	}
}

func delimsAction(ctx context.Context, cmd *cli.Command) error {
	path, err := oneArg(cmd)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	d, _, err := edi.ReadHeader(file, headerConfig(cmd))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	w := cmd.Root().Writer
	s := newStyles(w)

	fmt.Fprintln(w, s.title.Render(filepath.Base(path)))
	fmt.Fprintf(w, "segment terminator   %q\n", d.SegmentTerminator)
	fmt.Fprintf(w, "element separator    %q\n", d.ElementSeparator)
	fmt.Fprintf(w, "component separator  %q\n", d.ComponentSeparator)
	fmt.Fprintf(w, "repetition separator %q\n", d.RepetitionSeparator)
	if !d.Distinct() {
		fmt.Fprintln(w, s.error.Render("delimiters are not distinct, decoding is ambiguous"))
	}

	return nil
}

func segmentsCommand() *cli.Command {
	return &cli.Command{
		Name:      "segments",
		Usage:     "list the segments of a document",
		ArgsUsage: "<file>",
		Flags: append(documentFlags(),
			&cli.BoolFlag{
				Name:    "elements",
				Aliases: []string{"e"},
				Usage:   "also list the elements of every segment",
			},
		),
		Action: segmentsAction,
	}
}

func segmentsAction(ctx context.Context, cmd *cli.Command) error {
	path, err := oneArg(cmd)
	if err != nil {
		return err
	}

	logger, closer, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stream, err := openStream(cmd, file, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var (
		w        = cmd.Root().Writer
		s        = newStyles(w)
		d        = stream.Delimiters()
		elements = cmd.Bool("elements")
		position = 0
	)

	for segment, err := range stream.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if errors.Is(err, edi.ErrIO) {
			return fmt.Errorf("%s: %w", path, err)
		}

		if err != nil {
			var decodeErr *edi.DecodeError
			if errors.As(err, &decodeErr) {
				err = decodeErr.Err
			}
			fmt.Fprintf(w, "%4d %s\n", position, s.error.Render("error: "+err.Error()))
		} else {
			fmt.Fprintf(w, "%4d %s %s\n", position, s.tag.Render(string(segment.Tag)), segment.Body)
			if elements {
				i := 1
				for element := range segment.Elements(d) {
					fmt.Fprintf(w, "       %s%02d %s\n", segment.Tag, i, formatElement(element))
					i++
				}
			}
		}
		position++
	}

	return nil
}

func statCommand() *cli.Command {
	return &cli.Command{
		Name:      "stat",
		Usage:     "count the segments of documents by tag",
		ArgsUsage: "<file>...",
		Flags:     documentFlags(),
		Action:    statAction,
	}
}

type stat struct {
	segments int
	failed   int
	tags     map[string]int
}

func statAction(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("expected at least one file")
	}

	logger, closer, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	stats := make([]stat, len(paths))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		group.Go(func() error {
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			stream, err := openStream(cmd, file, logger.With().Str("file", path).Logger())
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			st := stat{tags: make(map[string]int)}
			for segment, err := range stream.All() {
				if err := ctx.Err(); err != nil {
					return err
				}
				if errors.Is(err, edi.ErrIO) {
					return fmt.Errorf("%s: %w", path, err)
				}
				st.segments++
				if err != nil {
					st.failed++
					continue
				}
				st.tags[string(segment.Tag)]++
			}
			stats[i] = st

			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	w := cmd.Root().Writer
	s := newStyles(w)

	for i, path := range paths {
		st := stats[i]
		fmt.Fprintf(w, "%s %s\n", s.title.Render(path), s.info.Render(fmt.Sprintf("%d segments, %d failed", st.segments, st.failed)))
		for _, tag := range slices.Sorted(maps.Keys(st.tags)) {
			fmt.Fprintf(w, "  %s %d\n", s.tag.Render(tag), st.tags[tag])
		}
	}

	return nil
}

func archiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "archive",
		Usage:     "store documents in a SQLite database",
		ArgsUsage: "<file>...",
		Flags: append(documentFlags(),
			&cli.StringFlag{
				Name:     "db",
				Usage:    "path of the SQLite database",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "durable",
				Usage: "sync every transaction to disk",
			},
			&cli.BoolFlag{
				Name:    "progress",
				Aliases: []string{"p"},
				Usage:   "show a progress bar per document",
			},
		),
		Action: archiveAction,
	}
}

func archiveAction(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("expected at least one file")
	}

	logger, closer, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	workers := min(len(paths), runtime.NumCPU())

	a, err := archive.New(func(c *archive.Config) {
		c.File(cmd.String("db"))
		c.Durable(cmd.Bool("durable"))
		c.Workers(workers)
		c.Logger(logger)
	})
	if err != nil {
		return err
	}

	docs := make([]*archive.Document, len(paths))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	var progress *mpb.Progress
	if cmd.Bool("progress") {
		progress = mpb.NewWithContext(gctx, mpb.WithOutput(cmd.Root().ErrWriter))
	}

	for i, path := range paths {
		group.Go(func() error {
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			var r io.Reader = file
			if progress != nil {
				info, err := file.Stat()
				if err != nil {
					return err
				}
				bar := newBar(progress, info.Size(), filepath.Base(path))
				defer func() {
					if !bar.Completed() {
						bar.Abort(false)
					}
				}()
				proxy := bar.ProxyReader(file)
				defer proxy.Close()
				r = proxy
			}

			stream, err := openStream(cmd, r, logger.With().Str("file", path).Logger())
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			doc, err := a.Store(gctx, filepath.Base(path), stream)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			docs[i] = doc

			return nil
		})
	}

	err = group.Wait()
	if progress != nil {
		progress.Wait()
	}
	if cerr := a.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close archive: %w", cerr))
	}
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	s := newStyles(w)

	for i, doc := range docs {
		status := s.success.Render(fmt.Sprintf("%d segments", doc.Segments))
		if doc.Failed != 0 {
			status += " " + s.error.Render(fmt.Sprintf("%d failed", doc.Failed))
		}
		fmt.Fprintf(w, "%s %s %s\n", paths[i], s.info.Render(doc.ID), status)
	}

	return nil
}

func newBar(p *mpb.Progress, size int64, name string) *mpb.Bar {
	return p.AddBar(size,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: 12, C: decor.DindentRight}),
			decor.CountersKibiByte(" % .2f / % .2f", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Elapsed(1, decor.WC{W: 12, C: decor.DindentRight}),
		),
	)
}

// openStream reads the header of the document in r and returns a stream over the whole document,
// header included.
func openStream(cmd *cli.Command, r io.Reader, logger zerolog.Logger) (*edi.Stream, error) {
	d, header, err := edi.ReadHeader(r, headerConfig(cmd))
	if err != nil {
		return nil, err
	}

	stream := edi.NewStream(io.MultiReader(bytes.NewReader(header), r), d, func(c *edi.Config) {
		c.LineBreaks(cmd.Bool("line-breaks"))
		c.Logger(logger)
	})

	return stream, nil
}

func headerConfig(cmd *cli.Command) edi.HeaderConfigFunc {
	return func(c *edi.HeaderConfig) {
		c.ReadRepetitionSeparator(cmd.Bool("read-repetition"))
	}
}

func newLogger(cmd *cli.Command) (zerolog.Logger, io.Closer, error) {
	root := cmd.Root()
	return log.New(root.ErrWriter, func(c *log.Config) {
		c.Level(root.String("log-level"))
		c.File(root.String("log-file"))
	})
}

func oneArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", errors.New("expected exactly one file")
	}
	return cmd.Args().First(), nil
}

// formatElement renders scalars quoted, composites as lists of components and repetitions joined
// by " ^ ".
func formatElement(element edi.Element) string {
	occurrences := make([]string, 0, len(element.Occurrences()))
	for _, occurrence := range element.Occurrences() {
		if !occurrence.Composite() {
			occurrences = append(occurrences, fmt.Sprintf("%q", occurrence.Value()))
			continue
		}
		components := make([]string, 0, len(occurrence.Components()))
		for _, component := range occurrence.Components() {
			components = append(components, fmt.Sprintf("%q", component))
		}
		occurrences = append(occurrences, "["+strings.Join(components, " ")+"]")
	}
	return strings.Join(occurrences, " ^ ")
}
