package hacienda_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tu-usuario/facturacion-cr/internal/domain/entity"
	"github.com/tu-usuario/facturacion-cr/internal/infrastructure/hacienda"
	"github.com/tu-usuario/facturacion-cr/pkg/config"
	"github.com/tu-usuario/facturacion-cr/pkg/logger"
)

const testClave = "50615032600310112345600100001040000000042112345678"

const testSignedXML = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<TiqueteElectronico xmlns="https://cdn.comprobanteselectronicos.go.cr/xml-schemas/v4.4/tiqueteElectronico">` +
	`<Clave>` + testClave + `</Clave>` +
	`<Emisor><Nombre>Prueba</Nombre><Identificacion><Tipo>02</Tipo><Numero>3101123456</Numero></Identificacion></Emisor>` +
	`</TiqueteElectronico>`

func newRecepcionTestDoc() *entity.GeneratedDocument {
	return &entity.GeneratedDocument{
		Clave:     testClave,
		Date:      time.Date(2026, 3, 15, 10, 30, 0, 0, time.FixedZone("CST", -6*3600)),
		XMLSigned: []byte(testSignedXML),
	}
}

func newRecepcionClient(url string) *hacienda.RecepcionClient {
	return hacienda.NewRecepcionClient(config.HaciendaConfig{
		Env:          "stag",
		RecepcionURL: url,
		EmisorTipo:   "01",
		EmisorNumero: "109990999",
	}, logger.New("development"))
}

// TestSubmit_PayloadYBearer verifica el sobre JSON: clave, fecha ISO-8601,
// emisor re-extraído del XML firmado (no el de configuración) y el XML en
// base64, con el token en Authorization.
func TestSubmit_PayloadYBearer(t *testing.T) {
	var auth string
	var payload map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := newRecepcionClient(srv.URL)
	resp, err := client.Submit(context.Background(), "tok-abc", newRecepcionTestDoc())
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-abc", auth)
	assert.Equal(t, "recibido", resp.IndEstado)
	assert.Equal(t, http.StatusAccepted, resp.HTTPStatus)

	var clave, fecha, comprobante string
	require.NoError(t, json.Unmarshal(payload["clave"], &clave))
	require.NoError(t, json.Unmarshal(payload["fecha"], &fecha))
	require.NoError(t, json.Unmarshal(payload["comprobanteXml"], &comprobante))
	assert.Equal(t, testClave, clave)
	assert.Equal(t, "2026-03-15T10:30:00-06:00", fecha)

	decoded, err := base64.StdEncoding.DecodeString(comprobante)
	require.NoError(t, err)
	assert.Equal(t, testSignedXML, string(decoded))

	var emisor struct {
		Tipo   string `json:"tipoIdentificacion"`
		Numero string `json:"numeroIdentificacion"`
	}
	require.NoError(t, json.Unmarshal(payload["emisor"], &emisor))
	assert.Equal(t, "02", emisor.Tipo, "El emisor se re-extrae del XML firmado")
	assert.Equal(t, "3101123456", emisor.Numero)
}

// TestSubmit_EmisorFallbackConfig usa la configuración cuando el XML no trae
// nodo de emisor.
func TestSubmit_EmisorFallbackConfig(t *testing.T) {
	var payload struct {
		Emisor struct {
			Tipo   string `json:"tipoIdentificacion"`
			Numero string `json:"numeroIdentificacion"`
		} `json:"emisor"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	doc := newRecepcionTestDoc()
	doc.XMLSigned = []byte(`<?xml version="1.0"?><TiqueteElectronico><Clave>` + testClave + `</Clave></TiqueteElectronico>`)

	_, err := newRecepcionClient(srv.URL).Submit(context.Background(), "tok", doc)
	require.NoError(t, err)
	assert.Equal(t, "01", payload.Emisor.Tipo)
	assert.Equal(t, "109990999", payload.Emisor.Numero)
}

// TestSubmit_RechazoConMensajeEstructurado mapea HTTP >= 400 a RejectedError
// con el mensaje del header X-Error-Cause.
func TestSubmit_RechazoConMensajeEstructurado(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Error-Cause", "clave ya fue recibida")
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newRecepcionClient(srv.URL).Submit(context.Background(), "tok", newRecepcionTestDoc())

	var rejected *hacienda.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadRequest, rejected.Status)
	assert.Equal(t, "clave ya fue recibida", rejected.Message)
}

// TestSubmit_RechazoConCuerpoCrudo sin campos estructurados usa un fragmento
// truncado del cuerpo.
func TestSubmit_RechazoConCuerpoCrudo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("algo salió muy mal en el servidor"))
	}))
	defer srv.Close()

	_, err := newRecepcionClient(srv.URL).Submit(context.Background(), "tok", newRecepcionTestDoc())

	var rejected *hacienda.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Message, "algo salió muy mal")
}

// TestSubmit_ErrorDeTransporte distingue fallas de red de rechazos del API.
func TestSubmit_ErrorDeTransporte(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newRecepcionClient(srv.URL).Submit(context.Background(), "tok", newRecepcionTestDoc())

	assert.ErrorIs(t, err, hacienda.ErrTransport)
	var rejected *hacienda.RejectedError
	assert.False(t, errors.As(err, &rejected), "Una falla de red no es un rechazo del API")
}

// TestCheckStatus_AceptadoConAcuse parsea ind-estado y decodifica el acuse.
func TestCheckStatus_AceptadoConAcuse(t *testing.T) {
	acuse := `<MensajeHacienda><DetalleMensaje>Comprobante aceptado</DetalleMensaje></MensajeHacienda>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+testClave, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"clave":         testClave,
			"ind-estado":    "aceptado",
			"respuesta-xml": base64.StdEncoding.EncodeToString([]byte(acuse)),
		})
	}))
	defer srv.Close()

	resp, err := newRecepcionClient(srv.URL).CheckStatus(context.Background(), "tok", testClave)
	require.NoError(t, err)

	assert.Equal(t, "aceptado", resp.IndEstado)
	assert.Equal(t, acuse, string(resp.RespuestaXML))
	assert.Equal(t, "Comprobante aceptado", resp.Message)
}

func TestCheckStatus_ErrorSiClaveInvalida(t *testing.T) {
	_, err := newRecepcionClient("http://irrelevante").CheckStatus(context.Background(), "tok", "123")
	assert.Error(t, err)
}

func TestSubmit_ErrorSiSinXMLFirmado(t *testing.T) {
	doc := newRecepcionTestDoc()
	doc.XMLSigned = nil
	_, err := newRecepcionClient("http://irrelevante").Submit(context.Background(), "tok", doc)
	assert.Error(t, err)
}
