// Package pdf implementa la Representación Gráfica del DTE salvadoreño.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Emisor + NIT/NRC  │  Tipo DTE + N° Control + Fecha │
//	│  ─────────────────────────────────────────────────────────  │
//	│  IDENTIFICACIÓN: Código de generación + Sello de recepción  │
//	│  RECEPTOR: Nombre + documento + contacto                    │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | Descripción | P.Unit | Gravada | IVA         │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Gravada / IVA / TOTAL A PAGAR + monto en letras   │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: QR de consulta pública MH + leyenda                │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"net/url"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/facturasv/dte-api/internal/domain/dte"
	"github.com/facturasv/dte-api/internal/domain/entity"
)

// URL de la consulta pública de DTEs del MH (el QR apunta aquí).
const urlConsultaPublica = "https://admin.factura.gob.sv/consultaPublica"

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 51, Blue: 102}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator genera la representación gráfica de un DTE con Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerarPDF genera el PDF del DTE y devuelve sus bytes. registro aporta los
// datos de transmisión (sello, estado); doc es el documento canónico con las
// líneas y el resumen.
func (g *MarotoPDFGenerator) GenerarPDF(
	_ context.Context,
	registro *entity.DTE,
	doc *dte.Documento,
) ([]byte, error) {
	tipo, err := dte.Lookup(registro.TipoDte)
	if err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Documento Tributario Electrónico", true).
		WithAuthor(doc.Emisor.Nombre, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(registro, doc, tipo.Nombre))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(identificacionRow(registro))
	m.AddRows(contraparteRow(doc))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	for _, r := range tableDetailRows(doc.CuerpoDocumento) {
		m.AddRows(r)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(doc.Resumen))
	m.AddRows(letrasRow(doc.Resumen.TotalLetras))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	for _, r := range footerRows(registro) {
		m.AddRows(r)
	}

	generado, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return generado.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: emisor (izq) y tipo de documento + número de control (der).
func headerRow(registro *entity.DTE, doc *dte.Documento, nombreTipo string) core.Row {
	fecha := registro.FechaEmision.Format("02/01/2006") + " " + registro.HoraEmision
	return row.New(20).Add(
		col.New(7).Add(
			text.New(doc.Emisor.Nombre, props.Text{
				Style: fontstyle.Bold, Size: 12, Color: colorPrimary, Top: 1,
			}),
			text.New("NIT: "+doc.Emisor.NIT+"   NRC: "+doc.Emisor.NRC, props.Text{
				Size: 8, Top: 8, Color: colorGray,
			}),
			text.New(doc.Emisor.DescActividad, props.Text{
				Size: 8, Top: 13, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(nombreTipo, props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(registro.NumeroControl, props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Right, Top: 8,
			}),
			text.New("Fecha: "+fecha, props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// identificacionRow: código de generación y sello de recepción del MH.
func identificacionRow(registro *entity.DTE) core.Row {
	sello := registro.SelloRecibido
	if sello == "" {
		sello = "PENDIENTE DE SELLO"
	}
	return row.New(12).Add(
		col.New(12).Add(
			text.New("Código de generación: "+registro.CodigoGeneracion, props.Text{
				Size: 8, Top: 1, Color: colorGray,
			}),
			text.New("Sello de recepción: "+sello, props.Text{
				Size: 8, Top: 6, Color: colorGray,
			}),
		),
	)
}

// contraparteRow: receptor o sujeto excluido según el tipo.
func contraparteRow(doc *dte.Documento) core.Row {
	nombre, numDoc, correo := "CONSUMIDOR FINAL", "", ""
	switch {
	case doc.Receptor != nil:
		nombre, numDoc, correo = doc.Receptor.Nombre, doc.Receptor.NumDocumento, doc.Receptor.Correo
	case doc.SujetoExcluido != nil:
		nombre, numDoc = doc.SujetoExcluido.Nombre, doc.SujetoExcluido.NumDocumento
	}
	return row.New(14).Add(
		col.New(12).Add(
			text.New("RECEPTOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(nombre, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
			text.New(fmt.Sprintf("Documento: %s   |   Correo: %s",
				nonEmpty(numDoc, "—"), nonEmpty(correo, "—"),
			), props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

// tableHeaderRow: cabecera de la tabla de líneas.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Descripción", 5, align.Left),
		h("Precio Unit.", 2, align.Right),
		h("Venta Gravada", 2, align.Right),
		h("IVA", 2, align.Right),
	)
}

// tableDetailRows: una fila por línea del cuerpo.
func tableDetailRows(cuerpo []dte.LineaDTE) []core.Row {
	result := make([]core.Row, 0, len(cuerpo))
	for _, l := range cuerpo {
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				l.Cantidad.StringFixed(2),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(5).Add(text.New(
				l.Descripcion,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				"$"+l.PrecioUni.StringFixed(2),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(2).Add(text.New(
				"$"+l.VentaGravada.StringFixed(2),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(2).Add(text.New(
				"$"+l.IvaItem.StringFixed(2),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// totalsRow: bloque de totales alineado a la derecha.
func totalsRow(resumen dte.Resumen) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
		})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	grandLabel := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 2,
		})
	}
	grandValue := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 1,
		})
	}

	return row.New(26).Add(
		col.New(4),
		col.New(4).Add(
			label("Total gravada:"),
			label("IVA:"),
			grandLabel("TOTAL A PAGAR:"),
		),
		col.New(4).Add(
			value("$"+resumen.TotalGravada.StringFixed(2)),
			value("$"+resumen.TotalIva.StringFixed(2)),
			grandValue("$"+resumen.TotalPagar.StringFixed(2)),
		),
	)
}

// letrasRow: monto total en letras.
func letrasRow(totalLetras string) core.Row {
	return row.New(6).Add(col.New(12).Add(
		text.New("SON: "+totalLetras, props.Text{
			Style: fontstyle.Italic, Size: 8, Color: colorGray, Top: 1,
		}),
	))
}

// footerRows: QR de la consulta pública del MH + leyenda.
func footerRows(registro *entity.DTE) []core.Row {
	qr := urlConsultaPublica + "?" + url.Values{
		"ambiente": {registro.Ambiente},
		"codGen":   {registro.CodigoGeneracion},
		"fechaEmi": {registro.FechaEmision.Format("2006-01-02")},
	}.Encode()

	return []core.Row{
		row.New(40).Add(
			col.New(4).Add(code.NewQr(qr, props.Rect{
				Percent: 95,
				Center:  true,
			})),
			col.New(8).Add(
				text.New("Escanee el código QR para verificar\neste documento en el portal del\nMinisterio de Hacienda.", props.Text{
					Size: 8, Top: 4, Left: 3, Color: colorGray,
				}),
				text.New("DOCUMENTO TRIBUTARIO ELECTRÓNICO", props.Text{
					Style: fontstyle.Bold, Size: 10, Top: 24,
					Left: 3, Color: colorPrimary,
				}),
			),
		),
		row.New(8).Add(col.New(12).Add(
			text.New(
				"Documento generado conforme a la normativa de facturación electrónica "+
					"de El Salvador. Conserve este documento como soporte fiscal.",
				props.Text{Size: 6.5, Color: colorGray, Top: 2},
			),
		)),
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
