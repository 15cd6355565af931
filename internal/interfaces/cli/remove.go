package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-conteo/internal/application/workingset"
)

// NewRemoveCommand quita un producto del conteo.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <codigo>",
		Short: "Quitar un producto del conteo actual",
		Args:  cobra.ExactArgs(1),
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
			err = e.reconciler.RemoveItem(ctx, args[0])
			switch {
			case errors.Is(err, workingset.ErrRemoteDelete):
				// Local ya borrado; el servidor conserva sus totales.
				fmt.Fprintf(cmd.ErrOrStderr(), "aviso: %v\n", err)
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s quitado\n", args[0])
			return nil
		},
	}
}
