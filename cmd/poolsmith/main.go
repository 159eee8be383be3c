package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/desertwitch/poolsmith/internal/configuration"
	"github.com/desertwitch/poolsmith/internal/devices"
	"github.com/desertwitch/poolsmith/internal/fsprov"
	"github.com/desertwitch/poolsmith/internal/linefile"
	"github.com/desertwitch/poolsmith/internal/lvm"
	"github.com/desertwitch/poolsmith/internal/raid"
	"github.com/desertwitch/poolsmith/internal/report"
	"github.com/desertwitch/poolsmith/internal/schema"
	"github.com/desertwitch/poolsmith/internal/services"
	"github.com/desertwitch/poolsmith/internal/share"
	"github.com/desertwitch/poolsmith/internal/shell"
	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
)

const (
	stackTraceBufMax = 1 << 24
)

//nolint:gochecknoglobals
var (
	ExitCode = 0
	Version  string

	verbose = flag.Bool("verbose", false, "enable debug logging")
)

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}),
	))
}

func setupSignalHandlers(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigChan
		cancel()
	}()

	sigChan2 := make(chan os.Signal, 1)
	signal.Notify(sigChan2, syscall.SIGUSR1)
	go func() {
		for range sigChan2 {
			buf := make([]byte, stackTraceBufMax)
			stacklen := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:stacklen])
		}
	}()
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-verbose] <pool|share> [arguments]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  pool   build a redundant storage pool out of block devices\n")
	fmt.Fprintf(os.Stderr, "  share  provision protocol access on an existing path\n")
}

// splitList splits a comma-separated flag value, dropping empty elements.
func splitList(value string) []string {
	var elements []string

	for _, element := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(element); trimmed != "" {
			elements = append(elements, trimmed)
		}
	}

	return elements
}

func runPool(ctx context.Context, app *App, args []string) error {
	flags := flag.NewFlagSet("pool", flag.ContinueOnError)

	name := flags.String("name", "", "name of the pool (required)")
	deviceList := flags.String("devices", "", "comma-separated member block devices (required)")
	level := flags.String("level", "", "redundancy level: mirrored, striped, parity-single, parity-dual, mirrored-striped (required)")
	cacheList := flags.String("cache-devices", "", "comma-separated solid-state cache devices (optional)")
	fsName := flags.String("fs", string(schema.FilesystemXFS), "filesystem type: xfs, ext4, btrfs")
	mountpoint := flags.String("mount", "", "mountpoint (default /mnt/<name>)")
	force := flags.Bool("force", false, "authorize destroying recognizable signatures on the devices")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrBadArguments, err)
	}

	if *name == "" || *deviceList == "" || *level == "" {
		flags.Usage()

		return fmt.Errorf("%w: -name, -devices and -level are required", ErrBadArguments)
	}

	parsedLevel, err := schema.ParseRedundancyLevel(*level)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadArguments, err)
	}

	fsType, err := schema.ParseFilesystemType(*fsName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadArguments, err)
	}

	if *mountpoint == "" {
		*mountpoint = "/mnt/" + *name
	}

	return app.BuildPool(ctx, &PoolRequest{
		Name:         *name,
		DevicePaths:  splitList(*deviceList),
		Level:        parsedLevel,
		CachePaths:   splitList(*cacheList),
		Filesystem:   fsType,
		Mountpoint:   *mountpoint,
		ForceDestroy: *force,
	})
}

func runShare(ctx context.Context, app *App, args []string) error {
	flags := flag.NewFlagSet("share", flag.ContinueOnError)

	name := flags.String("name", "", "name of the share (required)")
	path := flags.String("path", "", "absolute path to be shared (required)")
	protocolList := flags.String("protocols", "", "comma-separated protocols: nfs, cifs (required)")
	clientList := flags.String("clients", "", "comma-separated client ranges for NFS exports")
	user := flags.String("user", "", "restricted no-login service account (optional)")
	quota := flags.String("quota", "", "capacity quota, human-readable (e.g. 500GiB, optional)")
	nonInteractive := flags.Bool("non-interactive", false, "never prompt; generate credentials instead")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrBadArguments, err)
	}

	if *name == "" || *path == "" || *protocolList == "" {
		flags.Usage()

		return fmt.Errorf("%w: -name, -path and -protocols are required", ErrBadArguments)
	}

	var protocols []schema.Protocol
	for _, element := range splitList(*protocolList) {
		protocol, err := schema.ParseProtocol(element)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadArguments, err)
		}
		protocols = append(protocols, protocol)
	}

	var quotaBytes uint64
	if *quota != "" {
		parsed, err := humanize.ParseBytes(*quota)
		if err != nil {
			return fmt.Errorf("%w: failed to parse quota %q: %w", ErrBadArguments, *quota, err)
		}
		quotaBytes = parsed
	}

	return app.ProvisionShare(ctx, &share.Request{
		Name:           *name,
		Path:           *path,
		Protocols:      protocols,
		Clients:        splitList(*clientList),
		RestrictedUser: *user,
		QuotaBytes:     quotaBytes,
		NonInteractive: *nonInteractive,
	})
}

func establishApp() (*App, error) {
	osProvider := &schema.OS{}
	unixProvider := &schema.Unix{}
	runner := &shell.Exec{}

	configHandler := configuration.NewHandler(&configuration.GodotenvProvider{})
	settings, err := configHandler.EstablishSettings(configuration.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to establish operational settings: %w", err)
	}

	mountTable := linefile.NewStore(settings.MountTableFile, fsprov.MountTableKey, osProvider)
	registry := linefile.NewStore(settings.RegistryFile, raid.RegistryKey, osProvider)
	exports := linefile.NewStore(settings.ExportsFile, share.ExportsKey, osProvider)
	projects := linefile.NewStore(settings.ProjectsFile, share.ProjectsKey, osProvider)
	projid := linefile.NewStore(settings.ProjidFile, share.ProjidKey, osProvider)

	fsHandler := fsprov.NewHandler(runner, unixProvider, mountTable)

	return &App{
		settings:        settings,
		prober:          runner,
		devicesHandler:  devices.NewHandler(runner),
		raidHandler:     raid.NewHandler(runner, osProvider, registry),
		lvmHandler:      lvm.NewHandler(runner),
		fsHandler:       fsHandler,
		shareHandler: share.NewHandler(
			runner, osProvider, unixProvider, fsHandler,
			services.NewHandler(), settings, exports, projects, projid,
		),
		reportHandler: report.NewHandler(osProvider, settings.ActionLogFile, settings.SummaryFile),
	}, nil
}

func main() {
	defer func() {
		os.Exit(ExitCode)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flag.Usage = usage
	flag.Parse()
	setupLogging(*verbose)
	setupSignalHandlers(cancel)

	if flag.NArg() < 1 {
		usage()
		ExitCode = 2

		return
	}

	app, err := establishApp()
	if err != nil {
		slog.Error("Failed to establish application.", "err", err)
		ExitCode = 1

		return
	}

	switch flag.Arg(0) {
	case "pool":
		err = runPool(ctx, app, flag.Args()[1:])
	case "share":
		err = runShare(ctx, app, flag.Args()[1:])
	default:
		usage()
		ExitCode = 2

		return
	}

	if err != nil {
		slog.Error("Provisioning failed.", "err", err)

		if errors.Is(err, ErrBadArguments) {
			ExitCode = 2
		} else {
			ExitCode = 1
		}
	}
}
