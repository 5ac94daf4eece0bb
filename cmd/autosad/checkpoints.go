package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hed1ad/autosad/pkg/checkpoint"
)

func newCheckpointsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List runs and their checkpointed steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Checkpoint.Path == "" {
				return errors.New("no checkpoint directory; set --checkpoint-dir")
			}
			store, err := checkpoint.Open(checkpoint.Config{Path: a.cfg.Checkpoint.Path}, a.log)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs()
			if err != nil {
				return err
			}
			for _, run := range runs {
				steps, err := store.List(run)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s\t%d checkpoints\tlatest step %d\n", run, len(steps), steps[len(steps)-1])
			}
			return nil
		},
	}
	cmd.Flags().String("checkpoint-dir", "", "directory of the checkpoint store")
	return cmd
}
