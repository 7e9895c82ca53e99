package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fuelupapp/fuelup-server/internal/service"
	"github.com/fuelupapp/fuelup-server/internal/store"
)

type deviceView struct {
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName,omitempty"`
	Watermark  string    `json:"watermark"`
	LastSyncAt time.Time `json:"lastSyncAt"`
}

func newDevicesCmd(g *globals) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List a user's devices and their sync checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, backend, err := g.openStore(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			checkpoints := service.NewCheckpointManager(backend, g.logger(cmd, cfg))
			devices, err := checkpoints.ListDevices(cmdContext(cmd), userID)
			if err != nil {
				return err
			}

			views := make([]deviceView, 0, len(devices))
			for _, d := range devices {
				views = append(views, deviceView{
					DeviceID:   d.DeviceID,
					DeviceName: d.DeviceName,
					Watermark:  store.EncodeWatermark(d.Watermark),
					LastSyncAt: d.LastSyncAt,
				})
			}
			return printJSON(cmd.OutOrStdout(), views)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
