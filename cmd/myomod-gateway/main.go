// Command myomod-gateway publishes MyoMod notifications to an MQTT broker
// the way a BLE gateway would. Without hardware it relays the simulator.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/myomod/internal/device"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		mqttCfg device.MQTTConfig
		sim     = device.DefaultSimulatorConfig()
	)

	cmd := &cobra.Command{
		Use:          "myomod-gateway",
		Short:        "Relay simulated MyoMod notifications to MQTT",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, mqttCfg, sim)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&mqttCfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flags.StringVar(&mqttCfg.ClientID, "client-id", "myomod-gateway", "MQTT client ID")
	flags.StringVar(&mqttCfg.TopicPrefix, "prefix", "myomod", "topic prefix")
	flags.Float64Var(&sim.HandPoseHz, "hand-hz", sim.HandPoseHz, "hand pose rate")
	flags.Float64Var(&sim.EMGHz, "emg-hz", sim.EMGHz, "raw EMG rate")
	flags.Float64Var(&sim.FilteredEMGHz, "filtered-hz", sim.FilteredEMGHz, "filtered EMG rate")
	flags.IntVar(&sim.DropEvery, "drop-every", 0, "skip every Nth frame of each stream")
	flags.Int64Var(&sim.Seed, "seed", sim.Seed, "EMG noise seed")
	return cmd
}

func run(ctx context.Context, mqttCfg device.MQTTConfig, simCfg device.SimulatorConfig) error {
	pub, err := device.NewMQTTPublisher(mqttCfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	src := device.NewSimulator(simCfg)
	sub, err := src.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	log.Printf("Relaying %s to %s under %s/", src.Name(), mqttCfg.Broker, mqttCfg.TopicPrefix)
	sent, err := pub.Forward(ctx, sub)
	log.Printf("Published %d notifications", sent)
	return err
}
