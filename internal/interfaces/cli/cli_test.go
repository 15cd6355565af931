package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgjwt "github.com/jhoicas/inventario-conteo/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Estructura de comandos
// ──────────────────────────────────────────────────────────────────────────────

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "conteo", cmd.Use)
	assert.Contains(t, cmd.Long, "nunca duplica")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"agent", "scan", "sync", "catalog", "status", "remove", "clear"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	sub, _, err := cmd.Find([]string{"catalog", "import-done"})
	require.NoError(t, err)
	assert.Equal(t, "import-done", sub.Name())
}

func TestGlobalFlags(t *testing.T) {
	pf := NewRootCommand().PersistentFlags()

	verbose := pf.Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	assert.Equal(t, "text", pf.Lookup("format").DefValue)
	assert.Equal(t, "audit", pf.Lookup("mode").DefValue)
	for _, name := range []string{"db", "server", "token", "session", "participant"} {
		require.NotNil(t, pf.Lookup(name), name)
		assert.Equal(t, "", pf.Lookup(name).DefValue)
	}
}

func TestScanCommandFlags(t *testing.T) {
	scan, _, err := NewRootCommand().Find([]string{"scan"})
	require.NoError(t, err)
	loc := scan.Flags().Lookup("location")
	require.NotNil(t, loc)
	assert.Equal(t, "l", loc.Shorthand)
	assert.Equal(t, "front", loc.DefValue)
}

func TestPersistentPreRun_RechazaOpcionesInvalidas(t *testing.T) {
	cases := map[string][]string{
		"formato":                 {"status", "--format", "xml"},
		"modo":                    {"status", "--mode", "otro"},
		"sesion sin participante": {"status", "--session", "s-1"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			assert.Error(t, err)
		})
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Flujo sin conexión
// ──────────────────────────────────────────────────────────────────────────────

// offlineArgs base sqlite temporal y servidor apagado.
func offlineArgs(t *testing.T) []string {
	t.Helper()
	t.Setenv("SYNC_OWNER_ID", "")
	t.Setenv("SYNC_TOKEN", "")

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tok, err := pkgjwt.Generate("cli-secret", "owner-cli", "bodeguero", "conteo-test", 60)
	require.NoError(t, err)
	return []string{
		"--db", filepath.Join(t.TempDir(), "conteo.db"),
		"--server", url,
		"--token", tok,
		"--format", "json",
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func status(t *testing.T, base []string) statusResult {
	t.Helper()
	out, err := execute(t, append([]string{"status"}, base...)...)
	require.NoError(t, err)
	var st statusResult
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	return st
}

func TestScan_SinConexionQuedaPendiente(t *testing.T) {
	base := offlineArgs(t)

	out, err := execute(t, append([]string{"scan", "7701234", "3"}, base...)...)
	require.NoError(t, err)
	var res scanResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Online)
	assert.False(t, res.Known)
	assert.NotEmpty(t, res.MutationID)
	assert.Equal(t, "3", res.Count.Front)

	_, err = execute(t, append([]string{"scan", "7701234", "2", "-l", "back"}, base...)...)
	require.NoError(t, err)

	st := status(t, base)
	assert.False(t, st.Online)
	assert.Equal(t, "local", st.Source)
	assert.Equal(t, 2, st.Pending)
	assert.Equal(t, 2, st.LocalOnly)
	require.Len(t, st.Counts, 1)
	assert.Equal(t, "5", st.Counts[0].Total)
	assert.Equal(t, "2", st.Counts[0].Back)
	// Sin catálogo: saldo cero, todo es sobrante y no hay precio.
	assert.Equal(t, "5", st.Variance.Surplus)
	assert.Equal(t, 1, st.Variance.Unpriced)
}

func TestScan_CantidadInvalida(t *testing.T) {
	base := offlineArgs(t)
	_, err := execute(t, append([]string{"scan", "7701234", "tres"}, base...)...)
	assert.Error(t, err)
}

func TestSync_SinConexionNoEnvia(t *testing.T) {
	base := offlineArgs(t)
	_, err := execute(t, append([]string{"scan", "7701234", "1"}, base...)...)
	require.NoError(t, err)

	out, err := execute(t, append([]string{"sync"}, base...)...)
	require.NoError(t, err)
	var res syncResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "skipped", res.Result)
	assert.Equal(t, "offline", res.Skipped)
	assert.Equal(t, 1, res.Pending)
}

func TestRemove_QuitaDelConteoLocal(t *testing.T) {
	base := offlineArgs(t)
	_, err := execute(t, append([]string{"scan", "7701234", "4"}, base...)...)
	require.NoError(t, err)

	_, err = execute(t, append([]string{"remove", "7701234"}, base...)...)
	require.NoError(t, err)
	assert.Empty(t, status(t, base).Counts)

	_, err = execute(t, append([]string{"remove", "7701234"}, base...)...)
	assert.Error(t, err)
}

func TestClear_DescartaEventosSinSesion(t *testing.T) {
	base := offlineArgs(t)
	_, err := execute(t, append([]string{"scan", "7701234", "4"}, base...)...)
	require.NoError(t, err)

	_, err = execute(t, append([]string{"clear"}, base...)...)
	require.NoError(t, err)

	st := status(t, base)
	assert.Empty(t, st.Counts)
	assert.Zero(t, st.Pending)
}

func TestClear_SoloAfectaAlModoActivo(t *testing.T) {
	base := offlineArgs(t)
	_, err := execute(t, append([]string{"scan", "7701234", "4"}, base...)...)
	require.NoError(t, err)
	_, err = execute(t, append([]string{"scan", "880", "1", "--mode", "import"}, base...)...)
	require.NoError(t, err)

	_, err = execute(t, append([]string{"clear", "--mode", "import"}, base...)...)
	require.NoError(t, err)

	st := status(t, base)
	require.Len(t, st.Counts, 1)
	assert.Equal(t, 1, st.Pending)
}

func TestCatalogRefresh_SinConexionNiCopia(t *testing.T) {
	base := offlineArgs(t)
	_, err := execute(t, append([]string{"catalog", "refresh"}, base...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sin catálogo guardado")
}
