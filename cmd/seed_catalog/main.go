// seed_catalog carga el catálogo de un propietario desde un CSV exportado del ERP.
//
// Uso: go run ./cmd/seed_catalog -owner <id> [ruta/catalogo.csv]
// Columnas (separador ';'): codigo;descripcion;saldo;precio;categoria;marca;codigos_barras
// codigos_barras admite varios separados por coma. Acepta archivos en ISO-8859-1.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
	"github.com/jhoicas/inventario-conteo/internal/infrastructure/postgres"
	"github.com/jhoicas/inventario-conteo/pkg/config"
	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

type row struct {
	Product  entity.CatalogProduct
	Barcodes []string
}

func main() {
	owner := flag.String("owner", "", "propietario del catálogo")
	flag.Parse()
	csvPath := "catalogo.csv"
	if flag.NArg() > 0 {
		csvPath = flag.Arg(0)
	}
	if *owner == "" {
		fmt.Fprintln(os.Stderr, "falta -owner")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cargar configuración: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	f, err := os.Open(csvPath)
	if err != nil {
		log.Fatal().Err(err).Str("archivo", csvPath).Msg("abrir CSV")
	}
	defer f.Close()

	rows, err := parseCatalog(f, *owner)
	if err != nil {
		log.Fatal().Err(err).Msg("leer CSV")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migraciones")
	}

	repo := postgres.NewCatalogRepository(pool)
	links := 0
	for i := range rows {
		r := &rows[i]
		if err := repo.UpsertProduct(ctx, &r.Product); err != nil {
			log.Fatal().Err(err).Str("codigo", r.Product.Code).Msg("guardar producto")
		}
		for _, bc := range r.Barcodes {
			if err := repo.LinkBarcode(ctx, *owner, entity.BarcodeLink{Barcode: bc, ProductID: r.Product.ID}); err != nil {
				log.Fatal().Err(err).Str("codigo_barras", bc).Msg("vincular código de barras")
			}
			links++
		}
	}
	log.Info().Int("productos", len(rows)).Int("codigos_barras", links).Str("propietario", *owner).Msg("catálogo cargado")
}

// parseCatalog lee el CSV; detecta ISO-8859-1 si el contenido no es UTF-8 válido.
func parseCatalog(in io.Reader, ownerID string) ([]row, error) {
	br := bufio.NewReader(in)
	head, _ := br.Peek(4096)
	var src io.Reader = br
	if !utf8.Valid(head) {
		src = transform.NewReader(br, charmap.ISO8859_1.NewDecoder())
	}

	r := csv.NewReader(src)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out []row
	seen := map[string]int{}
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("línea %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "codigo") {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("línea %d: se esperan al menos codigo;descripcion;saldo", line)
		}
		code := entity.NormalizeCode(rec[0])
		if code == "" {
			return nil, fmt.Errorf("línea %d: código vacío", line)
		}
		if prev, dup := seen[code]; dup {
			return nil, fmt.Errorf("línea %d: código %s repetido (línea %d)", line, code, prev)
		}
		seen[code] = line

		balance, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
		if err != nil {
			return nil, fmt.Errorf("línea %d: saldo inválido %q", line, rec[2])
		}
		p := entity.CatalogProduct{
			OwnerID:     ownerID,
			Code:        code,
			Description: strings.TrimSpace(rec[1]),
			Balance:     balance,
		}
		if v := field(rec, 3); v != "" {
			price, err := decimal.NewFromString(v)
			if err != nil {
				return nil, fmt.Errorf("línea %d: precio inválido %q", line, v)
			}
			p.Price = &price
		}
		p.Category = field(rec, 4)
		p.Brand = field(rec, 5)

		var barcodes []string
		for _, bc := range strings.Split(field(rec, 6), ",") {
			if bc = entity.NormalizeCode(bc); bc != "" {
				barcodes = append(barcodes, bc)
			}
		}
		out = append(out, row{Product: p, Barcodes: barcodes})
	}
	return out, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
