package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/myomod/internal/app"
	"github.com/ayusman/myomod/internal/config"
	"github.com/ayusman/myomod/internal/device"
	"github.com/ayusman/myomod/internal/plugin"
	"github.com/ayusman/myomod/internal/server"
	"github.com/ayusman/myomod/internal/store"
	"github.com/ayusman/myomod/internal/tray"
)

type serveFlags struct {
	listen    string
	source    string
	broker    string
	webDir    string
	tray      bool
	record    bool
	dropEvery int
	plugins   string
}

func newServeCmd(configPath *string) *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the telemetry pipeline and web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, &cfg); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&f.listen, "listen", "", "HTTP listen address")
	cmd.Flags().StringVar(&f.source, "source", "", "notification source: simulator or mqtt")
	cmd.Flags().StringVar(&f.broker, "broker", "", "MQTT broker URL")
	cmd.Flags().StringVar(&f.webDir, "web", "", "directory of static web files")
	cmd.Flags().BoolVar(&f.tray, "tray", false, "show the system tray menu")
	cmd.Flags().BoolVar(&f.record, "record", false, "start recording on launch")
	cmd.Flags().IntVar(&f.dropEvery, "drop-every", 0, "simulator: skip every Nth frame")
	cmd.Flags().StringVar(&f.plugins, "plugins", "", "plugin directory, empty to disable actions")
	return cmd
}

// apply overrides cfg with the flags that were set on the command line.
func (f serveFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = f.listen
	}
	if flags.Changed("source") {
		cfg.Source.Kind = f.source
	}
	if flags.Changed("broker") {
		cfg.Source.MQTT.Broker = f.broker
	}
	if flags.Changed("web") {
		cfg.WebDir = f.webDir
	}
	if flags.Changed("tray") {
		cfg.Tray = f.tray
	}
	if flags.Changed("record") {
		cfg.Recording.Autostart = f.record
	}
	if flags.Changed("drop-every") {
		cfg.Source.Simulator.DropEvery = f.dropEvery
	}
	if flags.Changed("plugins") {
		cfg.Plugins.Dir = f.plugins
	}
	return cfg.Validate()
}

func openStore(cfg config.Config) (*store.Store, error) {
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func newSource(cfg config.Config) device.Source {
	switch cfg.Source.Kind {
	case config.SourceMQTT:
		return device.NewMQTTSource(device.MQTTConfig{
			Broker:      cfg.Source.MQTT.Broker,
			ClientID:    cfg.Source.MQTT.ClientID,
			TopicPrefix: cfg.Source.MQTT.TopicPrefix,
		})
	default:
		sim := device.DefaultSimulatorConfig()
		sim.HandPoseHz = cfg.Source.Simulator.HandPoseHz
		sim.EMGHz = cfg.Source.Simulator.EMGHz
		sim.FilteredEMGHz = cfg.Source.Simulator.FilteredHz
		sim.DropEvery = cfg.Source.Simulator.DropEvery
		return device.NewSimulator(sim)
	}
}

func newApp(cfg config.Config, st *store.Store, src device.Source) (*app.App, error) {
	return app.New(app.Config{
		Store:              st,
		Source:             src,
		TickHz:             cfg.TickHz,
		WristFlexRange:     cfg.Wrist.FlexRangeDeg,
		WristRotationRange: cfg.Wrist.RotationRangeDeg,
		RecordQueue:        cfg.Recording.Queue,
		GestureWindow:      cfg.GestureWindow,
	})
}

// newDispatcher discovers the configured plugins and binds their actions
// to gesture matches. It returns nils when plugins are disabled.
func newDispatcher(cfg config.Config, st *store.Store, application *app.App) (*plugin.Manager, *plugin.Dispatcher, error) {
	dir, err := cfg.PluginDir()
	if err != nil || dir == "" {
		return nil, nil, err
	}

	plugins := plugin.NewManager(dir)
	if err := plugins.Discover(); err != nil {
		return nil, nil, fmt.Errorf("discover plugins in %s: %w", dir, err)
	}
	log.Printf("Found %d plugins in %s", len(plugins.List()), dir)

	exec := plugin.NewExecutor(time.Duration(cfg.Plugins.TimeoutMs) * time.Millisecond)
	d := plugin.NewDispatcher(st.Actions(), plugins, exec, application)
	application.RegisterGestureCallback(d.Dispatch)
	return plugins, d, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	application, err := newApp(cfg, st, newSource(cfg))
	if err != nil {
		return err
	}
	if err := application.LoadGestures(); err != nil {
		log.Printf("Failed to load gestures: %v", err)
	}

	plugins, dispatcher, err := newDispatcher(cfg, st, application)
	if err != nil {
		return err
	}
	if dispatcher != nil {
		defer dispatcher.Close()
	}

	if err := application.Start(); err != nil {
		return err
	}
	defer application.Stop()
	log.Printf("Streaming from %s", application.SourceName())

	if cfg.Recording.Autostart {
		if sess, err := application.StartRecording(""); err != nil {
			log.Printf("Failed to start recording: %v", err)
		} else {
			log.Printf("Recording session %s", sess.ID)
		}
	}

	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		log.Printf("Serving static files from: %s", webDir)
	}

	srv := server.New(server.Config{
		StaticDir:  webDir,
		Store:      st,
		App:        application,
		Plugins:    plugins,
		Dispatcher: dispatcher,
	})
	defer srv.Close()

	httpServer := &http.Server{Addr: cfg.Listen, Handler: srv}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", cfg.Listen)
		errCh <- httpServer.ListenAndServe()
	}()

	if cfg.Tray {
		runTray(ctx, application, cfg.Listen, cancel)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	log.Printf("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return httpServer.Shutdown(shutdownCtx)
}

// runTray blocks in the tray loop until the user quits or ctx ends.
func runTray(ctx context.Context, application *app.App, listen string, quit func()) {
	t := tray.New()
	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.OnToggle(application.SetEnabled)
	t.OnRecord(func(start bool) error {
		if start {
			_, err := application.StartRecording("")
			return err
		}
		_, err := application.StopRecording()
		return err
	})
	t.OnOpen(func() {
		openBrowser("http://localhost" + listenPort(listen))
	})
	t.OnQuit(quit)

	application.RegisterGestureCallback(func(_, name string) {
		t.SetLastGesture(name)
	})
	var shown uint64
	remove := application.AddListener(func(snap app.Snapshot) {
		if snap.Gaps != shown {
			shown = snap.Gaps
			t.SetGaps(shown)
		}
	})
	defer remove()

	t.Run()
}
