package dte

import "github.com/shopspring/decimal"

// Tipos del documento canónico según Anexo II del MH. El documento se
// serializa a JSON tal cual para el firmador; los nombres de campo JSON
// son los que exige el esquema oficial.

// Identificacion bloque de identificación del documento.
type Identificacion struct {
	Version          int     `json:"version"`
	Ambiente         string  `json:"ambiente"`
	TipoDte          string  `json:"tipoDte"`
	NumeroControl    string  `json:"numeroControl"`
	CodigoGeneracion string  `json:"codigoGeneracion"`
	TipoModelo       int     `json:"tipoModelo"`
	TipoOperacion    int     `json:"tipoOperacion"`
	TipoContingencia *int    `json:"tipoContingencia"`
	MotivoContin     *string `json:"motivoContin"`
	FecEmi           string  `json:"fecEmi"` // YYYY-MM-DD
	HorEmi           string  `json:"horEmi"` // HH:MM:SS
	TipoMoneda       string  `json:"tipoMoneda"`
}

// Direccion dirección según catálogos de departamento/municipio.
type Direccion struct {
	Departamento string `json:"departamento"`
	Municipio    string `json:"municipio"`
	Complemento  string `json:"complemento"`
}

// EmisorDoc bloque emisor del documento.
type EmisorDoc struct {
	NIT                 string    `json:"nit"`
	NRC                 string    `json:"nrc"`
	Nombre              string    `json:"nombre"`
	CodActividad        string    `json:"codActividad"`
	DescActividad       string    `json:"descActividad"`
	NombreComercial     *string   `json:"nombreComercial"`
	TipoEstablecimiento string    `json:"tipoEstablecimiento"`
	Direccion           Direccion `json:"direccion"`
	Telefono            string    `json:"telefono"`
	Correo              string    `json:"correo"`
	CodEstableMH        string    `json:"codEstableMH"`
	CodEstable          string    `json:"codEstable"`
	CodPuntoVentaMH     string    `json:"codPuntoVentaMH"`
	CodPuntoVenta       string    `json:"codPuntoVenta"`
}

// ReceptorDoc bloque receptor (FE, CCF, NC, ND, NR, FEX, CD).
type ReceptorDoc struct {
	TipoDocumento string     `json:"tipoDocumento"`
	NumDocumento  string     `json:"numDocumento"`
	NRC           *string    `json:"nrc"`
	Nombre        string     `json:"nombre"`
	CodActividad  *string    `json:"codActividad"`
	DescActividad *string    `json:"descActividad"`
	Direccion     *Direccion `json:"direccion"`
	Telefono      *string    `json:"telefono"`
	Correo        string     `json:"correo"`
}

// SujetoExcluidoDoc contraparte para FSE (14): sustituye al receptor.
type SujetoExcluidoDoc struct {
	TipoDocumento string     `json:"tipoDocumento"`
	NumDocumento  string     `json:"numDocumento"`
	Nombre        string     `json:"nombre"`
	CodActividad  *string    `json:"codActividad"`
	DescActividad *string    `json:"descActividad"`
	Direccion     *Direccion `json:"direccion"`
	Telefono      *string    `json:"telefono"`
	Correo        *string    `json:"correo"`
}

// DocumentoRelacionado referencia al documento original (NC y ND).
type DocumentoRelacionado struct {
	TipoDocumento   string `json:"tipoDocumento"`
	TipoGeneracion  int    `json:"tipoGeneracion"`
	NumeroDocumento string `json:"numeroDocumento"`
	FechaEmision    string `json:"fechaEmision"`
}

// LineaDTE línea valorizada del cuerpoDocumento.
// Cantidad conserva hasta 8 decimales; montos a 2.
type LineaDTE struct {
	NumItem         int             `json:"numItem"`
	TipoItem        int             `json:"tipoItem"`
	NumeroDocumento *string         `json:"numeroDocumento"`
	Cantidad        decimal.Decimal `json:"cantidad"`
	Codigo          *string         `json:"codigo"`
	CodTributo      *string         `json:"codTributo"`
	UniMedida       int             `json:"uniMedida"`
	Descripcion     string          `json:"descripcion"`
	PrecioUni       decimal.Decimal `json:"precioUni"`
	MontoDescu      decimal.Decimal `json:"montoDescu"`
	VentaNoSuj      decimal.Decimal `json:"ventaNoSuj"`
	VentaExenta     decimal.Decimal `json:"ventaExenta"`
	VentaGravada    decimal.Decimal `json:"ventaGravada"`
	Tributos        []string        `json:"tributos"`
	PSV             decimal.Decimal `json:"psv"`
	NoGravado       decimal.Decimal `json:"noGravado"`
	IvaItem         decimal.Decimal `json:"ivaItem"`
}

// TributoResumen entrada del array de tributos del resumen.
type TributoResumen struct {
	Codigo      string          `json:"codigo"`
	Descripcion string          `json:"descripcion"`
	Valor       decimal.Decimal `json:"valor"`
}

// Resumen agregados del documento según Anexo II.
// Invariantes: SubTotalVentas == TotalNoSuj+TotalExenta+TotalGravada
// (redondeados a 2) y MontoTotalOperacion == TotalPagar.
type Resumen struct {
	TotalNoSuj          decimal.Decimal  `json:"totalNoSuj"`
	TotalExenta         decimal.Decimal  `json:"totalExenta"`
	TotalGravada        decimal.Decimal  `json:"totalGravada"`
	SubTotalVentas      decimal.Decimal  `json:"subTotalVentas"`
	DescuNoSuj          decimal.Decimal  `json:"descuNoSuj"`
	DescuExenta         decimal.Decimal  `json:"descuExenta"`
	DescuGravada        decimal.Decimal  `json:"descuGravada"`
	PorcentajeDescuento decimal.Decimal  `json:"porcentajeDescuento"`
	TotalDescu          decimal.Decimal  `json:"totalDescu"`
	Tributos            []TributoResumen `json:"tributos"`
	SubTotal            decimal.Decimal  `json:"subTotal"`
	IvaRete1            decimal.Decimal  `json:"ivaRete1"`
	ReteRenta           decimal.Decimal  `json:"reteRenta"`
	MontoTotalOperacion decimal.Decimal  `json:"montoTotalOperacion"`
	TotalNoGravado      decimal.Decimal  `json:"totalNoGravado"`
	TotalPagar          decimal.Decimal  `json:"totalPagar"`
	TotalLetras         string           `json:"totalLetras"`
	TotalIva            decimal.Decimal  `json:"totalIva"`
	SaldoFavor          decimal.Decimal  `json:"saldoFavor"`
	CondicionOperacion  int              `json:"condicionOperacion"`
	Pagos               []any            `json:"pagos"`
	NumPagoElectronico  *string          `json:"numPagoElectronico"`
}

// Documento documento DTE canónico completo. Inmutable una vez entregado
// al orquestador.
type Documento struct {
	Identificacion       Identificacion         `json:"identificacion"`
	DocumentoRelacionado []DocumentoRelacionado `json:"documentoRelacionado"`
	Emisor               EmisorDoc              `json:"emisor"`
	Receptor             *ReceptorDoc           `json:"receptor,omitempty"`
	SujetoExcluido       *SujetoExcluidoDoc     `json:"sujetoExcluido,omitempty"`
	OtrosDocumentos      []any                  `json:"otrosDocumentos"`
	VentaTercero         *any                   `json:"ventaTercero"`
	CuerpoDocumento      []LineaDTE             `json:"cuerpoDocumento"`
	Resumen              Resumen                `json:"resumen"`
	Extension            *any                   `json:"extension"`
	Apendice             []any                  `json:"apendice"`
}
