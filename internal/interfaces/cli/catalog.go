package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-conteo/internal/application/catalog"
)

type catalogResult struct {
	Products int  `json:"products"`
	Barcodes int  `json:"barcodes"`
	Stale    bool `json:"stale"`
}

// NewCatalogCommand operaciones sobre la copia local del catálogo.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catálogo de productos local",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Descargar el catálogo del servidor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, rootOpts, false)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "import-done",
		Short: "Avisar que terminó una importación masiva y recargar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, rootOpts, true)
		},
	})
	return cmd
}

func runCatalog(cmd *cobra.Command, opts *RootOptions, afterImport bool) error {
	ctx := cmd.Context()
	e, err := newEngine(opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	e.prober.Probe(ctx)
	var res *catalog.Result
	if afterImport {
		res, err = e.catalog.ImportCompleted(ctx, e.ownerID)
	} else {
		res, err = e.catalog.Refresh(ctx, e.ownerID)
	}
	if errors.Is(err, catalog.ErrNoCatalogData) {
		return fmt.Errorf("sin conexión y sin catálogo guardado: conéctese una vez para descargarlo")
	}
	if err != nil {
		return err
	}

	out := catalogResult{Products: len(res.Snapshot.Products), Barcodes: len(res.Snapshot.Links), Stale: res.Stale}
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Print(out, func(w io.Writer) {
		fmt.Fprintf(w, "productos=%d codigos_barras=%d\n", out.Products, out.Barcodes)
		if out.Stale {
			fmt.Fprintln(w, "aviso: datos desactualizados, no se pudo contactar al servidor")
		}
	})
}
