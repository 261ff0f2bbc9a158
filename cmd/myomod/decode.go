package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayusman/myomod/internal/telemetry"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <kind> <hex>",
		Short: "Decode one notification payload and print it as JSON",
		Long: `Decode one notification payload and print it as JSON.

kind is one of hand_pose, raw_emg or filtered_emg. The payload is given as
hex; spaces and colons are ignored.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := telemetry.ParseKind(args[0])
			if err != nil {
				return err
			}
			clean := strings.NewReplacer(" ", "", ":", "").Replace(args[1])
			data, err := hex.DecodeString(clean)
			if err != nil {
				return fmt.Errorf("payload: %w", err)
			}

			f, err := telemetry.Decode(k, data)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(f)
		},
	}
}
