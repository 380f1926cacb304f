package hacienda

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/tu-usuario/facturacion-cr/internal/domain/entity"
	"github.com/tu-usuario/facturacion-cr/pkg/config"
	"github.com/tu-usuario/facturacion-cr/pkg/logger"
)

// Endpoints oficiales del API de recepción v1.
const (
	RecepcionURLProd = "https://api.comprobanteselectronicos.go.cr/recepcion/v1/recepcion"
	RecepcionURLStag = "https://api-sandbox.comprobanteselectronicos.go.cr/recepcion/v1/recepcion"
)

const (
	submitTimeout = 30 * time.Second
	pollTimeout   = 20 * time.Second

	maxErrorSnippet = 300
)

// ErrTransport distingue fallas de red (timeout, DNS, TLS) de los rechazos
// del API; los llamadores aplican política de reintento distinta a cada uno.
var ErrTransport = errors.New("hacienda: error de transporte contra el API de recepción")

// RejectedError rechazo del API de recepción (HTTP >= 400). El cliente nunca
// reintenta por su cuenta: reintentar con una clave distinta duplicaría
// comprobantes legales.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("hacienda: recepción rechazó el envío (HTTP %d): %s", e.Status, e.Message)
}

// RecepcionClient envía comprobantes firmados y consulta su estado.
type RecepcionClient struct {
	cfg        config.HaciendaConfig
	httpClient *http.Client
	log        *logger.Logger
}

// NewRecepcionClient crea el cliente.
func NewRecepcionClient(cfg config.HaciendaConfig, log *logger.Logger) *RecepcionClient {
	return &RecepcionClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: submitTimeout},
		log:        log,
	}
}

func (c *RecepcionClient) baseURL() string {
	if c.cfg.RecepcionURL != "" {
		return strings.TrimRight(c.cfg.RecepcionURL, "/")
	}
	if c.cfg.Env == "prod" {
		return RecepcionURLProd
	}
	return RecepcionURLStag
}

// envelope payload JSON del POST de recepción.
type envelope struct {
	Clave  string `json:"clave"`
	Fecha  string `json:"fecha"`
	Emisor struct {
		TipoIdentificacion   string `json:"tipoIdentificacion"`
		NumeroIdentificacion string `json:"numeroIdentificacion"`
	} `json:"emisor"`
	ComprobanteXML string `json:"comprobanteXml"`
}

// statusResponse respuesta del GET de estado.
type statusResponse struct {
	Clave        string `json:"clave"`
	IndEstado    string `json:"ind-estado"`
	RespuestaXML string `json:"respuesta-xml"`
}

// Submit envía el comprobante firmado. La identificación del emisor se
// re-extrae del XML firmado para garantizar consistencia con lo que se firmó;
// la configuración solo actúa como respaldo.
func (c *RecepcionClient) Submit(ctx context.Context, token string, doc *entity.GeneratedDocument) (*entity.HaciendaResponse, error) {
	if doc == nil || len(doc.XMLSigned) == 0 {
		return nil, fmt.Errorf("hacienda: comprobante sin XML firmado")
	}

	env := envelope{
		Clave:          doc.Clave,
		Fecha:          doc.Date.Format("2006-01-02T15:04:05-07:00"),
		ComprobanteXML: base64.StdEncoding.EncodeToString(doc.XMLSigned),
	}

	tipo, numero := emisorFromSignedXML(doc.XMLSigned)
	if numero == "" {
		tipo, numero = c.cfg.EmisorTipo, onlyDigits(c.cfg.EmisorNumero)
	}
	if numero == "" {
		return nil, fmt.Errorf("hacienda: no hay identificación del emisor ni en el XML ni en la configuración")
	}
	env.Emisor.TipoIdentificacion = tipo
	env.Emisor.NumeroIdentificacion = numero

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("hacienda: serializar payload de recepción: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.log.Info().Str("clave", doc.Clave).Str("url", c.baseURL()).Msg("enviando comprobante a recepción")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: leer respuesta: %v", ErrTransport, err)
	}

	if resp.StatusCode >= 400 {
		return nil, &RejectedError{
			Status:  resp.StatusCode,
			Message: extractErrorMessage(resp, body),
		}
	}

	// Recepción exitosa: 201/202 sin cuerpo útil; el estado inicial es
	// "recibido" hasta que una consulta posterior devuelva el definitivo.
	return &entity.HaciendaResponse{
		Clave:      doc.Clave,
		IndEstado:  "recibido",
		HTTPStatus: resp.StatusCode,
		ReceivedAt: time.Now(),
	}, nil
}

// CheckStatus consulta el estado del comprobante por clave.
func (c *RecepcionClient) CheckStatus(ctx context.Context, token, clave string) (*entity.HaciendaResponse, error) {
	if len(clave) != 50 {
		return nil, fmt.Errorf("hacienda: clave de consulta inválida: %q", clave)
	}

	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/"+clave, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: leer respuesta: %v", ErrTransport, err)
	}

	if resp.StatusCode >= 400 {
		return nil, &RejectedError{
			Status:  resp.StatusCode,
			Message: extractErrorMessage(resp, body),
		}
	}

	var sr statusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("hacienda: respuesta de estado ilegible: %w", err)
	}

	out := &entity.HaciendaResponse{
		Clave:      clave,
		IndEstado:  strings.ToLower(sr.IndEstado),
		HTTPStatus: resp.StatusCode,
		ReceivedAt: time.Now(),
	}
	if sr.RespuestaXML != "" {
		if decoded, err := base64.StdEncoding.DecodeString(sr.RespuestaXML); err == nil {
			out.RespuestaXML = decoded
			out.Message = mensajeFromAcuse(decoded)
		}
	}
	return out, nil
}

// emisorFromSignedXML extrae Emisor/Identificacion/{Tipo,Numero} del XML
// firmado. Devuelve cadenas vacías si el nodo no existe.
func emisorFromSignedXML(signedXML []byte) (tipo, numero string) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return "", ""
	}
	root := doc.Root()
	if root == nil {
		return "", ""
	}
	emisor := root.FindElement("Emisor/Identificacion")
	if emisor == nil {
		return "", ""
	}
	if el := emisor.FindElement("Tipo"); el != nil {
		tipo = strings.TrimSpace(el.Text())
	}
	if el := emisor.FindElement("Numero"); el != nil {
		numero = strings.TrimSpace(el.Text())
	}
	return tipo, numero
}

// extractErrorMessage busca el detalle del error: primero el header
// X-Error-Cause del API, luego campos JSON conocidos, y como último recurso
// un fragmento truncado del cuerpo crudo.
func extractErrorMessage(resp *http.Response, body []byte) string {
	if cause := resp.Header.Get("X-Error-Cause"); cause != "" {
		return cause
	}

	var structured struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &structured); err == nil {
		switch {
		case structured.Message != "":
			return structured.Message
		case structured.Detail != "":
			return structured.Detail
		case structured.Error != "":
			return structured.Error
		}
	}

	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorSnippet {
		snippet = snippet[:maxErrorSnippet] + "..."
	}
	if snippet == "" {
		snippet = "(sin detalle)"
	}
	return snippet
}

// mensajeFromAcuse extrae DetalleMensaje del acuse XML de Hacienda.
func mensajeFromAcuse(acuse []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(acuse); err != nil {
		return ""
	}
	root := doc.Root()
	if root == nil {
		return ""
	}
	if el := root.FindElement("//DetalleMensaje"); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}
