// Command nfctool exercises a tag reader outside the station: query support,
// read a tag, write a user tag or verify one.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"hackops/internal/config"
	"hackops/internal/logging"
	"hackops/internal/nfc"
	"hackops/internal/nfc/pcsc"
	"hackops/internal/tagurl"
)

const usage = `usage: nfctool [flags] <command>

commands:
  support           report whether a reader is available
  read              print the URL stored on the next tag
  write <user-id>   store the user's URL on the next tag
  verify <user-id>  check that the next tag belongs to the user

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	fs := pflag.NewFlagSet("nfctool", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	driver := fs.String("driver", cfg.NFCDriver, "tag driver: pcsc or none")
	reader := fs.StringP("reader", "r", cfg.NFCReader, "substring of the PC/SC reader name")
	poll := fs.Duration("poll", cfg.NFCPollInterval, "card presence poll interval")
	baseURL := fs.String("base-url", cfg.TagBaseURL, "base URL written in front of /users/<id>")
	timeout := fs.DurationP("timeout", "t", 30*time.Second, "how long to wait for a tag")
	verbose := fs.BoolP("verbose", "v", false, "log driver activity")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	if err := tagurl.ValidateBase(*baseURL); err != nil {
		fmt.Fprintf(stderr, "nfctool: --base-url: %v\n", err)
		return 2
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := logging.New("dev")
		if err == nil {
			logger = l
			defer func() { _ = l.Sync() }()
		}
	}

	var dev nfc.Device = nfc.Unavailable{}
	switch *driver {
	case "pcsc":
		dev = pcsc.New(*reader, *poll, logger)
	case "none":
	default:
		fmt.Fprintf(stderr, "unknown driver %q\n", *driver)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	tr := nfc.NewTransport(dev, logger)
	defer tr.Close()

	cmd := tool{tr: tr, base: *baseURL, out: stdout}
	if err := cmd.exec(ctx, fs.Args()); err != nil {
		fmt.Fprintf(stderr, "nfctool: %v\n", err)
		return 1
	}
	return 0
}

type tool struct {
	tr   *nfc.Transport
	base string
	out  io.Writer
}

func (t tool) exec(ctx context.Context, args []string) error {
	switch args[0] {
	case "support":
		if !t.tr.IsSupported(ctx) {
			return nfc.ErrUnsupported
		}
		fmt.Fprintln(t.out, "tag reader available")
		return nil
	case "read":
		url, err := t.tr.Read(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(t.out, url)
		if id, ok := tagurl.ExtractID(url); ok {
			fmt.Fprintf(t.out, "user id: %d\n", id)
		}
		return nil
	case "write", "verify":
		if len(args) != 2 {
			return fmt.Errorf("%s needs a user id", args[0])
		}
		id, err := strconv.Atoi(args[1])
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid user id %q", args[1])
		}
		if args[0] == "write" {
			return t.write(ctx, id)
		}
		return t.verify(ctx, id)
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func (t tool) write(ctx context.Context, id int) error {
	url := tagurl.Build(t.base, id)
	fmt.Fprintln(t.out, "tap a tag to write", url)
	if err := t.tr.Write(ctx, url); err != nil {
		return err
	}
	fmt.Fprintln(t.out, "written")
	return nil
}

func (t tool) verify(ctx context.Context, id int) error {
	fmt.Fprintln(t.out, "tap the tag to verify")
	url, err := t.tr.Read(ctx)
	if err != nil {
		return err
	}
	got, ok := tagurl.ExtractID(url)
	if !ok {
		return fmt.Errorf("tag holds %q, not a user url", url)
	}
	if got != id {
		return fmt.Errorf("tag belongs to user %d, not %d", got, id)
	}
	fmt.Fprintf(t.out, "verified user %d\n", id)
	return nil
}
