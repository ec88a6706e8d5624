package entity

import "time"

// Emisor contribuyente emisor de DTEs, con sus credenciales MH.
// MHClavePrivada y MHClaveAPI se almacenan cifradas en reposo; el
// repositorio las entrega ya descifradas.
type Emisor struct {
	ID                  string
	TenantID            string
	NIT                 string // 14 dígitos
	NRC                 string
	Nombre              string
	NombreComercial     string
	CodActividad        string
	DescActividad       string
	TipoEstablecimiento string
	Departamento        string
	Municipio           string
	Complemento         string
	Telefono            string
	Correo              string
	CodEstableMH        string // ej. M001
	CodPuntoVentaMH     string // ej. P001
	Ambiente            string // "00" pruebas, "01" producción
	MHClavePrivada      string // Passphrase de la llave privada del firmador
	MHClaveAPI          string // Clave API del portal MH
	Correlativo         int64  // Último correlativo asignado
	Activo              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NITHacienda devuelve el NIT reducido a los últimos 9 dígitos, formato
// que exige la API del MH en el documento.
func (e *Emisor) NITHacienda() string {
	if len(e.NIT) <= 9 {
		return e.NIT
	}
	return e.NIT[len(e.NIT)-9:]
}

// CodigoEstablecimiento concatena establecimiento y punto de venta para
// el número de control.
func (e *Emisor) CodigoEstablecimiento() string {
	estable := e.CodEstableMH
	if estable == "" {
		estable = "M001"
	}
	punto := e.CodPuntoVentaMH
	if punto == "" {
		punto = "P001"
	}
	return estable + punto
}
