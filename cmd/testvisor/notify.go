package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bft-labs/testvisor/internal/adapters/control"
	"github.com/bft-labs/testvisor/internal/domain"
)

func newNotifyCommand(opts *options) *cobra.Command {
	kinds := make([]string, 0, len(domain.NotificationKinds))
	for _, k := range domain.NotificationKinds {
		kinds = append(kinds, k.String())
	}

	return &cobra.Command{
		Use:       "notify <kind>",
		Short:     "Deliver a notification to a running instance",
		Long:      fmt.Sprintf("Drop a notification into the instance's control directory.\n\nKinds: %v", kinds),
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseNotificationKind(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if err := control.Post(cfg.ControlDir, kind); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "posted %s to %s\n", kind, cfg.ControlDir)
			return nil
		},
	}
}
