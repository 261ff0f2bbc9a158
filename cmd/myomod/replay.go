package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/myomod/internal/app"
	"github.com/ayusman/myomod/internal/config"
)

func newReplayCmd(configPath *string) *cobra.Command {
	var (
		speed float64
		loop  bool
	)

	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Run a recorded session through the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			src, err := app.SessionReplay(st, args[0], speed, loop)
			if err != nil {
				return err
			}

			// Replays are not recorded again.
			application, err := newApp(cfg, nil, src)
			if err != nil {
				return err
			}
			if err := application.LoadGesturesFrom(st); err != nil {
				log.Printf("Failed to load gestures: %v", err)
			}

			if err := application.Start(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			select {
			case <-ctx.Done():
			case <-application.SourceDone():
				// Let the last sample reach a tick.
				time.Sleep(time.Duration(float64(time.Second) / cfg.TickHz))
			}
			application.Stop()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(application.Stats())
		},
	}

	cmd.Flags().Float64Var(&speed, "speed", 1, "playback speed; 0 replays as fast as possible")
	cmd.Flags().BoolVar(&loop, "loop", false, "restart the session when it ends")
	return cmd
}
