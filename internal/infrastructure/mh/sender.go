package mh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/facturasv/dte-api/internal/application/transmision"
	"github.com/facturasv/dte-api/pkg/config"
	"github.com/facturasv/dte-api/pkg/logger"
)

// ── Rutas de la API de recepción DTE ──────────────────────────────────────────

const (
	rutaRecepcion = "/fesv/recepciondte"
	rutaConsulta  = "/fesv/recepciondte/consultadte"
	rutaAnulacion = "/fesv/anulardte"
)

// Transmisor entrega DTEs firmados a la API de recepción del MH e interpreta
// la respuesta declarada. Los fallos de red y los HTTP 5xx se devuelven como
// error (transitorios, reintentables); un RECHAZADO declarado NO es error:
// es una respuesta válida del MH.
type Transmisor struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewTransmisor construye el cliente de recepción DTE.
func NewTransmisor(cfg config.MHConfig, log *logger.Logger) *Transmisor {
	return &Transmisor{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// recepcionRequest payload del endpoint de recepción.
type recepcionRequest struct {
	Ambiente         string `json:"ambiente"`
	IDEnvio          int    `json:"idEnvio"`
	Version          int    `json:"version"`
	TipoDte          string `json:"tipoDte"`
	CodigoGeneracion string `json:"codigoGeneracion"`
	Documento        string `json:"documento"` // JWS firmado
}

// recepcionResponse respuesta del MH (recepción, consulta y anulación
// comparten la forma).
type recepcionResponse struct {
	Estado           string   `json:"estado"`
	SelloRecibido    string   `json:"selloRecibido"`
	CodigoGeneracion string   `json:"codigoGeneracion"`
	FhProcesamiento  string   `json:"fhProcesamiento"`
	ClasificaMsg     string   `json:"clasificaMsg"`
	CodigoMsg        string   `json:"codigoMsg"`
	DescripcionMsg   string   `json:"descripcionMsg"`
	Observaciones    []string `json:"observaciones"`
}

// Enviar entrega el DTE firmado al endpoint de recepción.
func (t *Transmisor) Enviar(ctx context.Context, envio transmision.EnvioDTE) (*transmision.ResultadoMH, error) {
	payload := recepcionRequest{
		Ambiente:         envio.Ambiente,
		IDEnvio:          1,
		Version:          envio.Version,
		TipoDte:          envio.TipoDte,
		CodigoGeneracion: envio.CodigoGeneracion,
		Documento:        envio.DocumentoFirmado,
	}
	return t.llamar(ctx, rutaRecepcion, payload, envio.Token)
}

// ConsultarEstado consulta el estado de un DTE ya enviado. Se usa para
// resolver registros que quedaron en ENVIADO sin respuesta.
func (t *Transmisor) ConsultarEstado(ctx context.Context, codigoGeneracion, token string) (*transmision.ResultadoMH, error) {
	payload := map[string]string{
		"codigoGeneracion": codigoGeneracion,
	}
	return t.llamar(ctx, rutaConsulta, payload, token)
}

// Anular envía un evento de invalidación de un DTE ya procesado.
func (t *Transmisor) Anular(ctx context.Context, documentoAnulacion, ambiente, token string) (*transmision.ResultadoMH, error) {
	payload := map[string]interface{}{
		"ambiente":  ambiente,
		"idEnvio":   1,
		"version":   2,
		"documento": documentoAnulacion,
	}
	return t.llamar(ctx, rutaAnulacion, payload, token)
}

func (t *Transmisor) llamar(ctx context.Context, ruta string, payload interface{}, token string) (*transmision.ResultadoMH, error) {
	cuerpo, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mh: serializar payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+ruta,
		bytes.NewReader(cuerpo))
	if err != nil {
		return nil, fmt.Errorf("mh: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("mh: timeout o cancelación: %w", ctx.Err())
		}
		return nil, fmt.Errorf("mh: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("mh: leer respuesta: %w", err)
	}

	// 5xx: el MH no pudo procesar la petición, transitorio.
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("mh: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(rawBody)))
	}

	return t.interpretar(rawBody)
}

// interpretar construye el resultado desde el payload del MH. Un body
// imparseable se trata como rechazo con el crudo preservado, nunca como
// aceptación implícita.
func (t *Transmisor) interpretar(rawBody []byte) (*transmision.ResultadoMH, error) {
	var parsed recepcionResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return &transmision.ResultadoMH{
			Estado: transmision.EstadoMHRechazado,
			Observaciones: []string{
				"respuesta MH no interpretable: " + strings.TrimSpace(string(rawBody)),
			},
			Crudo: string(rawBody),
		}, nil
	}

	observaciones := parsed.Observaciones
	if parsed.Estado != transmision.EstadoMHProcesado && parsed.DescripcionMsg != "" {
		observaciones = append(observaciones, parsed.DescripcionMsg)
	}

	return &transmision.ResultadoMH{
		Estado:             parsed.Estado,
		SelloRecibido:      parsed.SelloRecibido,
		CodigoGeneracion:   parsed.CodigoGeneracion,
		FechaProcesamiento: parsed.FhProcesamiento,
		Observaciones:      observaciones,
		DescripcionMsg:     parsed.DescripcionMsg,
		Crudo:              string(rawBody),
	}, nil
}
