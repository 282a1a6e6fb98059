package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bft-labs/testvisor"
	"github.com/bft-labs/testvisor/internal/adapters/fsdir"
	logAdapter "github.com/bft-labs/testvisor/internal/adapters/log"
	"github.com/bft-labs/testvisor/internal/adapters/proc"
	"github.com/bft-labs/testvisor/internal/domain"
	"github.com/bft-labs/testvisor/internal/ports"
	"github.com/bft-labs/testvisor/internal/registry"
)

// registryView lists and prunes the root scope.
type registryView struct {
	reg *registry.Registry
}

func newRegistryView(dir ports.Directory, types ports.ObjectTypes, logger ports.Logger) *registryView {
	return &registryView{reg: registry.New(dir, types, logger)}
}

func (v *registryView) print(w io.Writer) error {
	statuses, err := v.reg.Inspect(domain.RootScope)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tPID\tSTATE")
	for _, s := range statuses {
		state := "live"
		if s.Stale {
			state = "stale"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Name, s.Handle.Kind, s.Handle.PID, state)
	}
	return tw.Flush()
}

func (v *registryView) prune(w io.Writer) error {
	removed, err := v.reg.Prune(domain.RootScope)
	for _, name := range removed {
		fmt.Fprintf(w, "removed %s\n", name)
	}
	return err
}

func newNamesCommand(opts *options) *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "names",
		Short: "List names in the shared registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger := logAdapter.NewZerologAdapter(testvisor.Logger(cmd.ErrOrStderr(), cfg))
			view := newRegistryView(fsdir.New(cfg.RegistryDir, logger), proc.NewTable(), logger)
			if prune {
				return view.prune(cmd.OutOrStdout())
			}
			return view.print(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "remove entries whose process is gone")
	return cmd
}
