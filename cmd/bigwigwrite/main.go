// Command bigwigwrite turns a bedGraph file into a bigWig file.
//
// Usage:
//
//	bigwigwrite write [flags] <input.bedGraph> <chrom.sizes> <output.bw>
//
// <output.bw> may be a local path or an s3:// URL; this package registers
// the s3 file.Implementation exactly as the teacher's cmd/pbzip2
// registers it for bzip2 output.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"cloudeng.io/cmdutil"
	"cloudeng.io/cmdutil/subcmd"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/schollz/progressbar/v2"
	"golang.org/x/crypto/ssh/terminal"
	"v.io/x/lib/cmd/flagvar"

	"github.com/genomekit/bigwig"
	"github.com/genomekit/bigwig/internal/bedgraph"
	"github.com/genomekit/bigwig/internal/bwerr"
)

// globalFlags binds process-wide flags directly onto flag.CommandLine,
// the way the teacher's pbz2-inspect.go uses flagvar for its single
// "-cmd-input" flag -- tag-driven registration instead of hand-rolled
// flag.StringVar/flag.BoolVar calls.
type globalFlags struct {
	Verbose bool `cmd:"verbose,false,'log the input/output paths and the final summary at debug level'"`
}

var commandline globalFlags

func init() {
	if err := flagvar.RegisterFlagsInStruct(flag.CommandLine, "cmd", &commandline, nil, nil); err != nil {
		panic(err)
	}
}

type writeFlags struct {
	Concurrency     int  `subcmd:"concurrency,0,'section-encoder worker pool size, 0 means GOMAXPROCS'"`
	ItemsPerSlot    int  `subcmd:"items-per-slot,1024,'max record count per section'"`
	BlockSize       int  `subcmd:"block-size,256,'B+-tree/R-tree fan-out'"`
	InitialZoomSize int  `subcmd:"initial-zoom-size,10,'finest zoom resolution, in bases'"`
	MaxZooms        int  `subcmd:"max-zooms,10,'number of zoom levels to compute'"`
	Compress        bool `subcmd:"compress,true,'zlib-compress section payloads'"`
	AllowOutOfOrder bool `subcmd:"allow-out-of-order-chroms,false,'disable the chromosome sort-order check'"`
	ProgressBar     bool `subcmd:"progress,true,'display a progress bar'"`
}

var cmdSet *subcmd.CommandSet

func init() {
	writeCmd := subcmd.NewCommand("write",
		subcmd.MustRegisterFlagStruct(&writeFlags{}, nil, nil),
		write, subcmd.ExactlyNumArguments(3))
	writeCmd.Document(`write a bigWig file from a bedGraph file: write <input.bedGraph> <chrom.sizes> <output.bw>`)

	cmdSet = subcmd.NewCommandSet(writeCmd)
	cmdSet.Document(`write bigWig files from bedGraph text. Output may be local or on S3.`)

	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

func main() {
	cmdSet.MustDispatch(context.Background())
}

func openInput(ctx context.Context, name string) (io.ReadCloser, func(context.Context) error, error) {
	f, err := file.Open(ctx, name)
	if err != nil {
		return nil, nil, bwerr.Wrap(bwerr.IoError, err, "bigwigwrite: open", "path", name)
	}
	return io.NopCloser(f.Reader(ctx)), f.Close, nil
}

// inputSize stats name the way the teacher's openFileOrURL stats its
// input before building a byte-counting progress bar.
func inputSize(ctx context.Context, name string) (int64, error) {
	info, err := file.Stat(ctx, name)
	if err != nil {
		return 0, bwerr.Wrap(bwerr.IoError, err, "bigwigwrite: stat", "path", name)
	}
	return info.Size(), nil
}

// countingReader tallies bytes read so progressScanner can drive a
// byte-based progressbar.NewOptions64 bar instead of an indeterminate
// record counter -- the only progressbar/v2 call shape this module's
// examples confirm.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// createOutput returns an io.WriteSeeker for the write pipeline's
// header back-patch (spec.md §4.6 step 10) plus a finish func that
// commits it to outputPath. Local paths are opened directly -- an
// *os.File already satisfies WriteSeeker. Remote destinations (S3 and
// any other file.Implementation the teacher's file.RegisterImplementation
// pattern adds) do not support in-place overwrite, so those write to a
// local scratch file first and finish uploads it via file.Create,
// mirroring the teacher's createFile except for the local staging step
// random-access writes force on us.
func createOutput(ctx context.Context, outputPath string) (io.WriteSeeker, func(context.Context) error, error) {
	if !strings.Contains(outputPath, "://") {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, nil, bwerr.Wrap(bwerr.IoError, err, "bigwigwrite: create output", "path", outputPath)
		}
		return f, func(context.Context) error { return f.Close() }, nil
	}

	scratch, err := os.CreateTemp("", "bigwigwrite-*.bw")
	if err != nil {
		return nil, nil, bwerr.Wrap(bwerr.IoError, err, "bigwigwrite: create scratch file")
	}
	finish := func(ctx context.Context) error {
		defer os.Remove(scratch.Name())
		if _, err := scratch.Seek(0, io.SeekStart); err != nil {
			scratch.Close()
			return bwerr.Wrap(bwerr.IoError, err, "bigwigwrite: rewind scratch file")
		}
		dst, err := file.Create(ctx, outputPath)
		if err != nil {
			scratch.Close()
			return bwerr.Wrap(bwerr.IoError, err, "bigwigwrite: create", "path", outputPath)
		}
		if _, err := io.Copy(dst.Writer(ctx), scratch); err != nil {
			dst.Close(ctx)
			scratch.Close()
			return bwerr.Wrap(bwerr.IoError, err, "bigwigwrite: upload", "path", outputPath)
		}
		if err := dst.Close(ctx); err != nil {
			scratch.Close()
			return bwerr.Wrap(bwerr.IoError, err, "bigwigwrite: close", "path", outputPath)
		}
		return scratch.Close()
	}
	return scratch, finish, nil
}

func write(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cmdutil.HandleSignals(cancel, os.Interrupt)

	fl := values.(*writeFlags)
	inputPath, sizesPath, outputPath := args[0], args[1], args[2]

	if fl.Concurrency <= 0 {
		fl.Concurrency = runtime.GOMAXPROCS(-1)
	}

	sizesFile, sizesClose, err := openInput(ctx, sizesPath)
	if err != nil {
		return err
	}
	defer sizesClose(ctx)
	chromSizes, err := bedgraph.ParseChromSizes(sizesFile)
	if err != nil {
		return err
	}

	size, err := inputSize(ctx, inputPath)
	if err != nil {
		return err
	}

	bgFile, bgClose, err := openInput(ctx, inputPath)
	if err != nil {
		return err
	}
	defer bgClose(ctx)
	counted := &countingReader{r: bgFile}
	scanner := bedgraph.NewScanner(counted)

	out, finishOutput, err := createOutput(ctx, outputPath)
	if err != nil {
		return err
	}

	if commandline.Verbose {
		log.Debug.Printf("bigwigwrite: writing %v (%d chromosomes in sizes file) -> %v", inputPath, len(chromSizes), outputPath)
	}

	isTTY := terminal.IsTerminal(int(os.Stderr.Fd()))
	var bar *progressbar.ProgressBar
	if fl.ProgressBar && isTTY {
		bar = progressbar.NewOptions64(size,
			progressbar.OptionSetBytes64(size),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetPredictTime(true))
		bar.RenderBlank()
	}

	opts := []bigwig.Option{
		bigwig.WithConcurrency(fl.Concurrency),
		bigwig.WithItemsPerSlot(uint32(fl.ItemsPerSlot)),
		bigwig.WithBlockSize(uint32(fl.BlockSize)),
		bigwig.WithInitialZoomSize(uint32(fl.InitialZoomSize)),
		bigwig.WithMaxZooms(uint16(fl.MaxZooms)),
		bigwig.WithCompress(fl.Compress),
		bigwig.WithAllowOutOfOrderChroms(fl.AllowOutOfOrder),
	}

	summary, err := bigwig.Write(ctx, out, chromSizes, progressScanner{scanner, bar, counted}, opts...)
	if err != nil {
		if bar != nil {
			fmt.Fprintln(os.Stderr)
		}
		return fmt.Errorf("%s: %w", bwerr.KindOf(err), err)
	}
	if bar != nil {
		fmt.Fprintln(os.Stderr)
	}
	if err := finishOutput(ctx); err != nil {
		return err
	}
	if commandline.Verbose {
		log.Debug.Printf("bigwigwrite: wrote %d bases covered, sum=%v", summary.BasesCovered, summary.Sum)
	}
	return nil
}

// progressScanner adapts bedgraph.Scanner to bigwig.Source, advancing
// bar by bytes consumed since the last record -- mirroring the
// teacher's progressBar goroutine, which calls bar.Add(p.Compressed)
// per block, except driven inline here since bedgraph scanning (unlike
// bzip2 block decompression) is not dispatched to a worker pool.
type progressScanner struct {
	sc      *bedgraph.Scanner
	bar     *progressbar.ProgressBar
	counted *countingReader
}

func (p progressScanner) Next() (string, bigwig.Record, error) {
	before := p.counted.n
	chrom, rec, err := p.sc.Next()
	if p.bar != nil {
		_ = p.bar.Add(int(p.counted.n - before))
	}
	return chrom, rec, err
}
