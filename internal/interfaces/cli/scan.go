package cli

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-conteo/internal/application/workingset"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

type scanResult struct {
	Count        countLine `json:"count"`
	Known        bool      `json:"known"`
	MutationID   string    `json:"mutationId"`
	Online       bool      `json:"online"`
	Acknowledged int       `json:"acknowledged"`
}

// NewScanCommand registra un conteo: primero en disco, luego a la cola.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	var location string
	cmd := &cobra.Command{
		Use:   "scan <codigo> <cantidad>",
		Short: "Registrar un conteo (cantidad negativa corrige)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("cantidad inválida %q", args[1])
			}
			return runScan(cmd, rootOpts, args[0], qty, entity.Location(location))
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", string(entity.LocationFront), "ubicación (front|back)")
	return cmd
}

func runScan(cmd *cobra.Command, opts *RootOptions, code string, qty decimal.Decimal, loc entity.Location) error {
	ctx := cmd.Context()
	e, err := newEngine(opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if _, err := e.start(ctx); err != nil {
		return err
	}
	res, err := e.reconciler.RecordCount(ctx, workingset.CountInput{Code: code, Quantity: qty, Location: loc})
	if err != nil {
		return err
	}

	out := scanResult{
		Count:      toLines([]entity.WorkingCount{res.Count})[0],
		Known:      res.Known,
		MutationID: res.Mutation.ID,
		Online:     e.observer.Online(),
	}
	if out.Online {
		report, err := e.queue.Flush(ctx)
		if err != nil {
			e.log.Warn().Err(err).Msg("envío inmediato fallido, queda en cola")
		}
		out.Acknowledged = report.Acknowledged
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Print(out, func(w io.Writer) {
		if !out.Known {
			fmt.Fprintf(w, "aviso: %s no está en el catálogo\n", out.Count.Code)
		}
		fmt.Fprintf(w, "%s  frente=%s fondo=%s total=%s\n", out.Count.Code, out.Count.Front, out.Count.Back, out.Count.Total)
		if !out.Online {
			fmt.Fprintln(w, "sin conexión: el conteo quedó guardado y se enviará después")
		}
	})
}
