package dte

import (
	"strings"

	"github.com/facturasv/dte-api/internal/domain"
	"github.com/shopspring/decimal"
)

// Cálculos fiscales según normativa salvadoreña (Anexo II).
// Funciones puras: entrada cruda + reglas del tipo → línea valorizada y resumen.

// Unidades de medida por defecto según catálogo CAT-014.
const (
	UniMedidaBien     = 59 // unidad
	UniMedidaServicio = 99 // otra
)

// Tipos de item según catálogo CAT-011.
const (
	ItemBien     = 1
	ItemServicio = 2
	ItemAmbos    = 3
	ItemOtro     = 4
)

// ItemFactura línea de entrada tal como la envía el cliente.
type ItemFactura struct {
	Descripcion    string
	Cantidad       decimal.Decimal
	PrecioUnitario decimal.Decimal
	Descuento      decimal.Decimal
	TipoItem       int      // 1=bien, 2=servicio, 3=ambos, 4=otro (default 1)
	UniMedida      *int     // override opcional del catálogo CAT-014
	Codigo         *string  // código interno del producto
	Tributos       []string // override opcional del array de tributos
}

// redondear2 redondeo fiscal a 2 decimales (mitad hacia arriba).
func redondear2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// CalcularLinea valoriza una línea del cuerpoDocumento según las reglas del
// tipo de DTE.
//
// La venta gravada es siempre el neto redondeado; lo único que varía entre
// regímenes es cómo se deriva el IVA de la línea:
//   - Precio incluye IVA (FE): se extrae informativamente, neto/(1+t)*t.
//   - FSE/FEX (sin IVA): ivaItem = 0.
//   - Resto (precio neto): se agrega, neto*t.
//
// Fallback de compatibilidad: si el tipo no está en el registro, sólo "01"
// se trata como precio-incluye-IVA; cualquier otro código desconocido se
// calcula como régimen exclusivo sin tributos. Es un fallback documentado
// del calculador, no una regla del registro.
func CalcularLinea(item ItemFactura, numItem int, tipoDte string) (LineaDTE, error) {
	if err := validarItem(item, numItem); err != nil {
		return LineaDTE{}, err
	}

	config, err := Lookup(tipoDte)
	precioIncluyeIVA := config.PrecioIncluyeIVA
	// Regímenes sin IVA en línea: retención de renta (FSE) y exportación (FEX)
	sinIVA := config.AplicaRetencion() || config.EsExportacion
	if err != nil {
		precioIncluyeIVA = tipoDte == TipoFactura
		sinIVA = false
		config = TipoDTE{Codigo: tipoDte}
	}

	tipoItem := item.TipoItem
	if tipoItem == 0 {
		tipoItem = ItemBien
	}

	montoBruto := item.Cantidad.Mul(item.PrecioUnitario)
	montoNeto := montoBruto.Sub(item.Descuento)

	ventaGravada := redondear2(montoNeto)
	var ivaItem decimal.Decimal
	switch {
	case precioIncluyeIVA:
		// IVA informativo, ya folded en el precio unitario
		ivaItem = redondear2(montoNeto.Div(decimal.NewFromInt(1).Add(TasaIVA)).Mul(TasaIVA))
	case sinIVA:
		ivaItem = decimal.Zero
	default:
		ivaItem = redondear2(montoNeto.Mul(TasaIVA))
	}

	uniMedida := UniMedidaBien
	if tipoItem == ItemServicio {
		uniMedida = UniMedidaServicio
	}
	if item.UniMedida != nil {
		uniMedida = *item.UniMedida
	}

	tributos := item.Tributos
	if tributos == nil {
		tributos = TributosCuerpo(config)
	}

	return LineaDTE{
		NumItem:      numItem,
		TipoItem:     tipoItem,
		Cantidad:     item.Cantidad.Round(8),
		Codigo:       item.Codigo,
		UniMedida:    uniMedida,
		Descripcion:  strings.ToUpper(item.Descripcion),
		PrecioUni:    redondear2(item.PrecioUnitario),
		MontoDescu:   redondear2(item.Descuento),
		VentaNoSuj:   decimal.Zero,
		VentaExenta:  decimal.Zero,
		VentaGravada: ventaGravada,
		Tributos:     tributos,
		PSV:          decimal.Zero,
		NoGravado:    decimal.Zero,
		IvaItem:      ivaItem,
	}, nil
}

func validarItem(item ItemFactura, numItem int) error {
	switch {
	case item.Cantidad.IsNegative() || item.Cantidad.IsZero():
		return domain.NuevaErrorLinea(numItem, "cantidad debe ser positiva")
	case item.PrecioUnitario.IsNegative():
		return domain.NuevaErrorLinea(numItem, "precio unitario no puede ser negativo")
	case item.Descuento.IsNegative():
		return domain.NuevaErrorLinea(numItem, "descuento no puede ser negativo")
	case item.Descuento.GreaterThan(item.Cantidad.Mul(item.PrecioUnitario)):
		return domain.NuevaErrorLinea(numItem, "descuento mayor al monto de la línea")
	}
	return nil
}

// CalcularResumen agrega las líneas del cuerpoDocumento en el resumen del
// Anexo II. Cada agregado se redondea una sola vez, después de sumar, nunca
// por adición intermedia.
//
// montoTotalOperacion: subTotal cuando el precio incluye IVA o es
// exportación; subTotal - retención para tipos con retención de renta;
// subTotal + totalIva en regímenes exclusivos.
func CalcularResumen(lineas []LineaDTE, condicionOperacion int, tipoDte string) Resumen {
	config, err := Lookup(tipoDte)
	precioIncluyeIVA := config.PrecioIncluyeIVA
	if err != nil {
		precioIncluyeIVA = tipoDte == TipoFactura
		config = TipoDTE{Codigo: tipoDte}
	}

	var totalNoSuj, totalExenta, totalGravada, totalDescuento, totalIva decimal.Decimal
	for _, l := range lineas {
		totalNoSuj = totalNoSuj.Add(l.VentaNoSuj)
		totalExenta = totalExenta.Add(l.VentaExenta)
		totalGravada = totalGravada.Add(l.VentaGravada)
		totalDescuento = totalDescuento.Add(l.MontoDescu)
		totalIva = totalIva.Add(l.IvaItem)
	}
	totalNoSuj = redondear2(totalNoSuj)
	totalExenta = redondear2(totalExenta)
	totalGravada = redondear2(totalGravada)
	totalDescuento = redondear2(totalDescuento)
	totalIva = redondear2(totalIva)

	subTotalVentas := redondear2(totalNoSuj.Add(totalExenta).Add(totalGravada))
	subTotal := subTotalVentas

	var montoTotalOperacion decimal.Decimal
	reteRenta := decimal.Zero
	switch {
	case precioIncluyeIVA:
		montoTotalOperacion = subTotal
	case config.AplicaRetencion():
		reteRenta = redondear2(totalGravada.Mul(config.TasaRetencion))
		montoTotalOperacion = redondear2(subTotal.Sub(reteRenta))
	case config.EsExportacion:
		montoTotalOperacion = subTotal
	default:
		montoTotalOperacion = redondear2(subTotal.Add(totalIva))
	}

	totalPagar := redondear2(montoTotalOperacion)

	var tributos []TributoResumen
	if config.UsaTributos {
		codigo := config.CodigoTributoIVA
		if codigo == "" {
			codigo = CodigoIVA
		}
		tributos = []TributoResumen{{Codigo: codigo, Descripcion: DescripcionIVA, Valor: totalIva}}
	}

	return Resumen{
		TotalNoSuj:          totalNoSuj,
		TotalExenta:         totalExenta,
		TotalGravada:        totalGravada,
		SubTotalVentas:      subTotalVentas,
		DescuNoSuj:          decimal.Zero,
		DescuExenta:         decimal.Zero,
		DescuGravada:        totalDescuento,
		PorcentajeDescuento: decimal.Zero,
		TotalDescu:          totalDescuento,
		Tributos:            tributos,
		SubTotal:            subTotal,
		IvaRete1:            decimal.Zero,
		ReteRenta:           reteRenta,
		MontoTotalOperacion: montoTotalOperacion,
		TotalNoGravado:      decimal.Zero,
		TotalPagar:          totalPagar,
		TotalLetras:         NumeroALetras(totalPagar),
		TotalIva:            totalIva,
		SaldoFavor:          decimal.Zero,
		CondicionOperacion:  condicionOperacion,
	}
}

// ValidarCuadre verifica los invariantes aritméticos del resumen:
// subTotalVentas == noSuj+exenta+gravada y montoTotalOperacion == totalPagar.
func ValidarCuadre(r Resumen) (bool, string) {
	suma := redondear2(r.TotalNoSuj.Add(r.TotalExenta).Add(r.TotalGravada))
	if !suma.Equal(r.SubTotalVentas) {
		return false, "subTotalVentas no cuadra: " + suma.StringFixed(2) + " vs " + r.SubTotalVentas.StringFixed(2)
	}
	if !r.MontoTotalOperacion.Equal(r.TotalPagar) {
		return false, "montoTotalOperacion difiere de totalPagar"
	}
	return true, "Cálculos correctos"
}
