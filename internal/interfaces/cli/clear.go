package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewClearCommand vacía el conteo local del modo activo.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Vaciar el conteo local del modo (--mode)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEngine(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if _, err := e.start(ctx); err != nil {
				return err
			}
			if err := e.reconciler.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "conteo %s vaciado\n", e.mode)
			return nil
		},
	}
}
