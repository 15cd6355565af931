package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

// RootOptions flags globales de todos los comandos. Los vacíos no pisan la configuración de entorno.
type RootOptions struct {
	Verbose     bool
	Format      string // "text" | "json"
	DBPath      string
	ServerURL   string
	Token       string
	Mode        string
	Session     string
	Participant string
}

// ValidFormats formatos de salida admitidos.
var ValidFormats = []string{"text", "json"}

// NewRootCommand comando raíz del cliente de conteo.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "conteo",
		Short: "Conteo de inventario con sincronización diferida",
		Long: `Cliente de conteo físico de inventario.

Cada escaneo se guarda primero en el dispositivo y se envía al servidor
cuando hay conexión. Reenviar un lote nunca duplica cantidades.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("formato inválido %q: use uno de %v", opts.Format, ValidFormats)
			}
			if !entity.CountMode(opts.Mode).Valid() {
				return fmt.Errorf("modo inválido %q: use audit o import", opts.Mode)
			}
			if (opts.Session == "") != (opts.Participant == "") {
				return fmt.Errorf("--session y --participant van juntos")
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "log detallado en stderr")
	pf.StringVar(&opts.Format, "format", "text", "formato de salida (text|json)")
	pf.StringVar(&opts.DBPath, "db", "", "archivo sqlite local (LOCAL_DB_PATH)")
	pf.StringVar(&opts.ServerURL, "server", "", "URL del servidor (SYNC_SERVER_URL)")
	pf.StringVar(&opts.Token, "token", "", "token de acceso (SYNC_TOKEN)")
	pf.StringVar(&opts.Mode, "mode", string(entity.ModeAudit), "modo de conteo (audit|import)")
	pf.StringVar(&opts.Session, "session", "", "sesión colaborativa")
	pf.StringVar(&opts.Participant, "participant", "", "participante dentro de la sesión")

	cmd.AddCommand(NewAgentCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
