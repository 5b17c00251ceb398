// Package companion ties the helper's installation, process, connection and
// inbound requests together behind one object with a single teardown.
package companion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/tth05/code-viewer/internal/classpath"
	"github.com/tth05/code-viewer/internal/core"
	"github.com/tth05/code-viewer/internal/db"
	"github.com/tth05/code-viewer/internal/keyring"
	"github.com/tth05/code-viewer/internal/navigate"
	"github.com/tth05/code-viewer/internal/protocol"
	"github.com/tth05/code-viewer/internal/release"
	"github.com/tth05/code-viewer/internal/supervisor"
)

// MetaFileName is the version record inside the install directory
const MetaFileName = ".meta"

// Fetcher downloads and extracts a helper release
type Fetcher interface {
	Fetch(ctx context.Context, version, destDir string, expectedSize uint64, onProgress release.ProgressFunc) error
}

// EventLog records lifecycle and navigation events. When it also implements
// io.Closer, Close closes it.
type EventLog interface {
	LogBridgeEvent(eventType, details string) error
	LogNavigation(n db.Navigation) error
}

// Deps are the collaborators New builds from the configuration when left nil
type Deps struct {
	Index      release.Querier
	Fetcher    Fetcher
	Decompiler navigate.Decompiler
	Classes    classpath.Lookuper
	Viewer     navigate.Viewer
	Events     EventLog
}

// Companion manages the helper process and the connection to it
type Companion struct {
	cfg        *core.Configuration
	store      *release.Store
	fetcher    Fetcher
	supervisor *supervisor.Supervisor
	channel    *protocol.Channel
	pipeline   *navigate.Pipeline
	decompiler navigate.Decompiler
	viewer     navigate.Viewer
	watcher    *navigate.Watcher
	events     EventLog
	index      *classpath.Index // owned, nil when injected
	// loaded is set once the version record has been read, which already
	// queries the index; StartAndConnect is not called concurrently
	loaded bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New prepares the install directory and wires the version record,
// supervisor, channel and navigation pipeline. Nothing is started and the
// release index is not queried until StartAndConnect.
func New(ctx context.Context, cfg *core.Configuration, deps Deps) (*Companion, error) {
	if err := os.MkdirAll(cfg.Helper.InstallDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create install directory: %w", err)
	}
	outputDir, err := filepath.Abs(cfg.Decompiler.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("invalid decompilation directory: %w", err)
	}

	c := &Companion{
		cfg:        cfg,
		fetcher:    deps.Fetcher,
		supervisor: supervisor.New(),
		decompiler: deps.Decompiler,
		viewer:     deps.Viewer,
		events:     deps.Events,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	index := deps.Index
	if index == nil {
		index = release.NewIndex(cfg.Release.IndexURL, keyring.TokenOrEmpty)
	}
	c.store = release.NewStore(filepath.Join(cfg.Helper.InstallDir, MetaFileName), cfg.HostVersion, index)

	if c.fetcher == nil {
		c.fetcher = release.NewFetcher(cfg.Release.DownloadURLTemplate)
	}
	if c.decompiler == nil {
		c.decompiler = &navigate.CommandDecompiler{Command: cfg.Decompiler.Command, Dir: outputDir}
	}

	classes := deps.Classes
	if classes == nil {
		if c.index, err = classpath.Open(cfg.Classpath); err != nil {
			c.cancel()
			return nil, err
		}
		classes = c.index
	}

	// helper paths are relative to the decompilation directory
	c.pipeline = navigate.NewPipeline(c.decompiler.OutputDir(), navigate.ReflectionSolver{Index: classes}, c.decompiler)
	if c.events != nil {
		c.pipeline.Log = c.events
	}
	if c.viewer == nil {
		c.viewer = ChannelViewer{Sender: c, Dir: c.decompiler.OutputDir()}
	}
	c.channel = protocol.NewChannel(cfg.Helper.Port, cfg.Helper.ConnectTimeout, c)

	if w, err := navigate.NewWatcher(c.decompiler.OutputDir(), c.pipeline.Solver); err != nil {
		slog.Warn("Decompiled sources will not be watched for changes", "error", err)
	} else {
		c.watcher = w
		go w.Run(c.ctx)
	}

	return c, nil
}

// StartAndConnect installs or updates the helper when needed, starts it when
// it is not running and connects when not connected. Progress goes to
// onStatus, which may be nil. It reports whether a connection is up.
func (c *Companion) StartAndConnect(ctx context.Context, onStatus StatusFunc) bool {
	send := func(s Status) {
		if onStatus != nil {
			onStatus(s)
		}
	}

	if !c.supervisor.IsRunning() {
		c.ensureInstalled(ctx, send)
		c.start(send)
	}

	if c.channel.IsConnected() {
		return true
	}

	send(message(KeyConnecting, false))
	if c.channel.Connect(ctx, c.cfg.Helper.ConnectRetries, c.cfg.Helper.ConnectDelay) {
		send(message(KeyConnectionSuccess, false))
		c.logEvent("connected", fmt.Sprintf("port %d", c.cfg.Helper.Port))
		return true
	}
	send(message(KeyConnectionFail, true))
	c.logEvent("connection_failed", fmt.Sprintf("port %d after %d attempts", c.cfg.Helper.Port, c.cfg.Helper.ConnectRetries))
	return false
}

func (c *Companion) ensureInstalled(ctx context.Context, send StatusFunc) {
	if !c.loaded {
		c.store.Load(ctx)
		c.loaded = true
	} else if err := c.store.RefreshNewestCompatible(ctx); err != nil {
		slog.Warn("Could not refresh newest companion app version", "error", err)
	}
	rec := c.store.Record()

	exe := c.cfg.ExecutablePath()
	if !supervisor.NeedsRestart(exe, rec.InstalledVersion, rec.NewestCompatibleVersion, rec.HostVersionChanged) {
		return
	}
	if !rec.NewestKnown() {
		send(message(KeyVersionUnknown, true))
		c.logEvent("version_unknown", "release index unreachable")
		return
	}

	// an outdated process must not keep the old executable busy
	c.supervisor.Terminate()

	version := rec.NewestCompatibleVersion
	send(message(KeyDownloadStart, false, version, humanize.Bytes(rec.NewestArtifactSize)))
	err := c.fetcher.Fetch(ctx, version, c.cfg.Helper.InstallDir, rec.NewestArtifactSize, func(percent int) {
		send(progress(percent))
	})
	if err != nil {
		slog.Error("Unable to download companion app", "version", version, "error", err)
		send(message(KeyDownloadFail, true, version))
		c.logEvent("download_failed", fmt.Sprintf("%s: %v", version, err))
		return
	}

	if err := c.store.MarkInstalled(version); err != nil {
		slog.Error("Unable to write meta file", "error", err)
	}
	slog.Info("Successfully downloaded companion app", "version", version)
	c.logEvent("installed", version)
}

func (c *Companion) start(send StatusFunc) {
	send(message(KeyStarting, false))

	args := append(append([]string{}, c.cfg.Helper.Args...), c.decompiler.OutputDir())
	logDir := filepath.Join(c.cfg.Helper.InstallDir, "logs")
	if err := c.supervisor.Start(c.cfg.ExecutablePath(), args, logDir); err != nil {
		slog.Error("Unable to start companion app", "error", err)
		c.logEvent("start_failed", err.Error())
		return
	}
	slog.Info("Started companion app", "pid", c.supervisor.Pid(), "log", c.supervisor.LogFile())
	c.logEvent("started", fmt.Sprintf("pid %d", c.supervisor.Pid()))
}

// IsRunning reports whether the helper process is alive
func (c *Companion) IsRunning() bool {
	return c.supervisor.IsRunning()
}

// IsConnected probes the connection to the helper
func (c *Companion) IsConnected() bool {
	return c.channel.IsConnected()
}

// SendOpenFile asks the helper to open path at a zero-based line
func (c *Companion) SendOpenFile(path string, line int) error {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return c.channel.Send(protocol.OpenFile{Path: path, Line: int32(line)})
}

// SendSearchResults forwards the results of a reference search to the helper
func (c *Companion) SendSearchResults(query string, results []string, methodSearch bool, classesScanned, elapsedMs int) error {
	return c.channel.Send(protocol.SearchResults{
		Query:          query,
		Results:        results,
		MethodSearch:   methodSearch,
		ClassesScanned: int32(classesScanned),
		ElapsedMs:      int32(elapsedMs),
	})
}

// Pipeline returns the navigation pipeline serving helper requests
func (c *Companion) Pipeline() *navigate.Pipeline {
	return c.pipeline
}

// Snapshot is a point-in-time view of the companion
type Snapshot struct {
	Record     release.Record
	Running    bool
	Pid        int
	LogFile    string
	Connection protocol.State
}

// Snapshot reports versions, process and connection state
func (c *Companion) Snapshot() Snapshot {
	return Snapshot{
		Record:     c.store.Record(),
		Running:    c.supervisor.IsRunning(),
		Pid:        c.supervisor.Pid(),
		LogFile:    c.supervisor.LogFile(),
		Connection: c.channel.State(),
	}
}

// Close disconnects, force-kills the helper and releases every resource.
// It is safe to call more than once.
func (c *Companion) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.channel.Close()
		c.supervisor.Terminate()
		c.logEvent("stopped", "")

		if c.watcher != nil {
			c.watcher.Close()
		}
		if c.index != nil {
			c.index.Close()
		}
		if closer, ok := c.events.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				slog.Warn("Failed to close event log", "error", err)
			}
		}
	})
}

func (c *Companion) logEvent(eventType, details string) {
	if c.events == nil {
		return
	}
	if err := c.events.LogBridgeEvent(eventType, details); err != nil {
		slog.Error("Failed to log bridge event", "error", err)
	}
}
