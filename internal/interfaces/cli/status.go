package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-conteo/internal/application/workingset"
	"github.com/jhoicas/inventario-conteo/internal/domain/inventory"
)

type varianceLine struct {
	Matched  int    `json:"matched"`
	Surplus  string `json:"surplus"`
	Shortage string `json:"shortage"`
	NetValue string `json:"netValue"`
	Unpriced int    `json:"unpriced"`
}

type statusResult struct {
	Mode      string       `json:"mode"`
	Source    string       `json:"source"`
	Online    bool         `json:"online"`
	Pending   int          `json:"pending"`
	LocalOnly int          `json:"localOnly"`
	CatalogAt *time.Time   `json:"catalogFetchedAt,omitempty"`
	Counts    []countLine  `json:"counts"`
	Variance  varianceLine `json:"variance"`
}

// NewStatusCommand muestra el conjunto de trabajo y lo que falta por enviar.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Conteo actual y eventos pendientes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts)
		},
	}
}

func runStatus(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()
	e, err := newEngine(opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	view, err := e.start(ctx)
	if err != nil {
		return err
	}
	pending, localOnly, err := e.pendingCounts(ctx)
	if err != nil {
		return err
	}

	out := statusResult{
		Mode:      string(view.Mode),
		Source:    string(view.Source),
		Online:    e.observer.Online(),
		Pending:   pending,
		LocalOnly: localOnly,
		Counts:    toLines(view.Counts),
	}
	v := inventory.Variance(view.Counts, func(code string) *decimal.Decimal {
		if p, ok := e.catalog.Resolve(code); ok {
			return p.Price
		}
		return nil
	})
	out.Variance = varianceLine{
		Matched:  v.Matched,
		Surplus:  v.Surplus.String(),
		Shortage: v.Shortage.String(),
		NetValue: v.NetValue.StringFixed(2),
		Unpriced: v.Unpriced,
	}
	if snap := e.catalog.Current(); snap != nil && !snap.FetchedAt.IsZero() {
		at := snap.FetchedAt
		out.CatalogAt = &at
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Print(out, func(w io.Writer) {
		conn := "sin conexión"
		if out.Online {
			conn = "en línea"
		}
		fmt.Fprintf(w, "modo=%s origen=%s %s\n", out.Mode, out.Source, conn)
		fmt.Fprintf(w, "pendientes=%d sin_sesion=%d\n", out.Pending, out.LocalOnly)
		if out.Source == string(workingset.SourceLocal) && out.Online && opts.Session != "" {
			fmt.Fprintln(w, "aviso: consolidado del servidor no disponible, se muestra el conteo local")
		}
		writeCountTable(w, out.Counts)
		if len(out.Counts) > 0 {
			fmt.Fprintf(w, "sin_diferencia=%d sobrante=%s faltante=%s valor_neto=%s\n",
				out.Variance.Matched, out.Variance.Surplus, out.Variance.Shortage, out.Variance.NetValue)
		}
	})
}
