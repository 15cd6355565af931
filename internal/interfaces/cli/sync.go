package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-conteo/internal/application/syncqueue"
)

type rejectedLine struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	Pending       int    `json:"pending"`
	Reason        string `json:"reason"`
}

type syncResult struct {
	Result       string         `json:"result"`
	Skipped      string         `json:"skipped,omitempty"`
	Partitions   int            `json:"partitions"`
	Failed       int            `json:"failed"`
	Rejected     []rejectedLine `json:"rejected,omitempty"`
	Discarded    int            `json:"discarded,omitempty"`
	Sent         int            `json:"sent"`
	Acknowledged int            `json:"acknowledged"`
	Duplicates   int            `json:"duplicates"`
	Pending      int            `json:"pending"`
	LocalOnly    int            `json:"localOnly"`
}

func newSyncResult(r syncqueue.Report, pending, localOnly int) syncResult {
	return syncResult{
		Result:       r.Result(),
		Skipped:      string(r.Skipped),
		Partitions:   r.Partitions,
		Failed:       r.Failed,
		Sent:         r.Sent,
		Acknowledged: r.Acknowledged,
		Duplicates:   r.Duplicates,
		Pending:      pending,
		LocalOnly:    localOnly,
	}
}

type syncOptions struct {
	discardRejected bool
}

// NewSyncCommand un ciclo de envío manual.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &syncOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Enviar ahora los conteos pendientes",
		Long: `Ejecuta un ciclo de envío. Si el servidor rechaza una sesión (cerrada, sin acceso
o lote inválido) sus eventos quedan apartados y se listan; --discard-rejected los borra.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.discardRejected, "discard-rejected", false, "Borrar los eventos que el servidor rechazó")
	return cmd
}

func runSync(cmd *cobra.Command, opts *RootOptions, syncOpts *syncOptions) error {
	ctx := cmd.Context()
	e, err := newEngine(opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	e.prober.Probe(ctx)
	report, flushErr := e.queue.Flush(ctx)
	rejected, err := e.queue.Rejections(ctx)
	if err != nil {
		return err
	}
	discarded := 0
	if syncOpts.discardRejected && len(rejected) > 0 {
		if discarded, err = e.queue.DiscardRejected(ctx); err != nil {
			return err
		}
	}
	pending, localOnly, err := e.pendingCounts(ctx)
	if err != nil {
		return err
	}
	out := newSyncResult(report, pending, localOnly)
	out.Discarded = discarded
	for _, r := range rejected {
		out.Rejected = append(out.Rejected, rejectedLine{
			SessionID:     r.SessionID,
			ParticipantID: r.ParticipantID,
			Pending:       r.Pending,
			Reason:        r.Reason,
		})
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := f.Print(out, func(w io.Writer) {
		if out.Skipped != "" {
			fmt.Fprintf(w, "envío omitido: %s\n", out.Skipped)
		} else {
			fmt.Fprintf(w, "lotes=%d fallidos=%d enviados=%d confirmados=%d duplicados=%d\n",
				out.Partitions, out.Failed, out.Sent, out.Acknowledged, out.Duplicates)
		}
		for _, r := range out.Rejected {
			fmt.Fprintf(w, "rechazado sesion=%s participante=%s eventos=%d: %s\n",
				r.SessionID, r.ParticipantID, r.Pending, r.Reason)
		}
		switch {
		case out.Discarded > 0:
			fmt.Fprintf(w, "descartados=%d\n", out.Discarded)
		case len(out.Rejected) > 0:
			fmt.Fprintln(w, "aviso: use --discard-rejected para borrar los eventos rechazados")
		}
		fmt.Fprintf(w, "pendientes=%d sin_sesion=%d\n", out.Pending, out.LocalOnly)
	}); err != nil {
		return err
	}
	return flushErr
}
