package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

// OutputFormatter escribe resultados en texto o JSON según --format.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Print emite v como JSON o ejecuta text para el formato legible.
func (f *OutputFormatter) Print(v any, text func(w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(f.Writer)
	return nil
}

// countLine fila de conteo tal como la ven text y json.
type countLine struct {
	Code          string `json:"code"`
	Description   string `json:"description,omitempty"`
	Front         string `json:"front"`
	Back          string `json:"back"`
	Total         string `json:"total"`
	SystemBalance string `json:"systemBalance"`
	Difference    string `json:"difference"`
}

func toLines(counts []entity.WorkingCount) []countLine {
	out := make([]countLine, 0, len(counts))
	for i := range counts {
		c := &counts[i]
		out = append(out, countLine{
			Code:          c.Code,
			Description:   c.Description,
			Front:         c.Quantity(entity.LocationFront).String(),
			Back:          c.Quantity(entity.LocationBack).String(),
			Total:         c.Total().String(),
			SystemBalance: c.SystemBalance.String(),
			Difference:    c.Difference().String(),
		})
	}
	return out
}

func writeCountTable(w io.Writer, lines []countLine) {
	if len(lines) == 0 {
		fmt.Fprintln(w, "sin productos contados")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CÓDIGO\tDESCRIPCIÓN\tFRENTE\tFONDO\tTOTAL\tSISTEMA\tDIFERENCIA")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", l.Code, l.Description, l.Front, l.Back, l.Total, l.SystemBalance, l.Difference)
	}
	_ = tw.Flush()
}
