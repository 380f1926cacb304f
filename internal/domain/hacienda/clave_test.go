package hacienda_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tu-usuario/facturacion-cr/internal/domain/hacienda"
)

// ──────────────────────────────────────────────────────────────────────────────
// TestGenerateClave_VectorExacto valida que la clave de 50 dígitos se arma
// posición por posición como la exige el Anexo v4.4:
//
//	506 + ddmmyy + identificación emisor (12, ceros a la izquierda) +
//	sucursal(3) + terminal(5) + tipo(2) + secuencial(10) + situación(1) +
//	código de seguridad(8)
//
// Con fecha 15/03/2026, cédula jurídica 3101123456, sucursal 1, terminal 1,
// tipo 01, secuencial 42, situación normal y código fijo 12345678:
//
//	506 150326 003101123456 001 00001 01 0000000042 1 12345678
// ──────────────────────────────────────────────────────────────────────────────

func TestGenerateClave_VectorExacto(t *testing.T) {
	svc := hacienda.NewClaveService()

	got, err := svc.Generate(&hacienda.ClaveParams{
		Date:         time.Date(2026, 3, 15, 10, 30, 0, 0, time.FixedZone("CST", -6*3600)),
		EmisorNumero: "3101123456",
		Branch:       1,
		Terminal:     1,
		DocType:      hacienda.DocTypeFactura,
		Sequential:   42,
		SecurityCode: "12345678",
	})
	require.NoError(t, err)

	assert.Equal(t, "50615032600310112345600100001010000000042112345678", got.Clave)
	assert.Equal(t, "00100001010000000042", got.Consecutivo)
	assert.Len(t, got.Clave, 50)
	assert.Len(t, got.Consecutivo, 20)
}

// TestGenerateClave_ConsecutivoDentroDeClave verifica que el consecutivo
// devuelto coincide con las posiciones 22-41 de la clave.
func TestGenerateClave_ConsecutivoDentroDeClave(t *testing.T) {
	svc := hacienda.NewClaveService()

	got, err := svc.Generate(buildClaveParams())
	require.NoError(t, err)
	assert.Equal(t, got.Consecutivo, got.Clave[21:41],
		"El consecutivo debe ocupar las posiciones 22-41 de la clave")
}

// TestGenerateClave_IdentificacionConGuiones verifica que la identificación
// se normaliza a solo dígitos antes de rellenar a 12.
func TestGenerateClave_IdentificacionConGuiones(t *testing.T) {
	svc := hacienda.NewClaveService()

	p := buildClaveParams()
	p.EmisorNumero = "3-101-123456"
	got, err := svc.Generate(p)
	require.NoError(t, err)
	assert.Contains(t, got.Clave, "003101123456",
		"La identificación debe quedar como 12 dígitos rellenos con ceros")
}

// TestGenerateClave_CodigoSeguridadAleatorio verifica que sin código fijo se
// generan 8 dígitos y que dos claves consecutivas difieren solo por él.
func TestGenerateClave_CodigoSeguridadAleatorio(t *testing.T) {
	svc := hacienda.NewClaveService()

	p := buildClaveParams()
	p.SecurityCode = ""

	g1, err := svc.Generate(p)
	require.NoError(t, err)
	g2, err := svc.Generate(p)
	require.NoError(t, err)

	assert.Len(t, g1.Clave, 50)
	assert.Equal(t, g1.Clave[:42], g2.Clave[:42],
		"Los primeros 42 dígitos son deterministas para los mismos parámetros")
	for _, r := range g1.Clave[42:] {
		assert.True(t, r >= '0' && r <= '9', "El código de seguridad debe ser numérico")
	}
}

// TestGenerateClave_SituacionPorDefecto verifica situación "1" cuando no se indica.
func TestGenerateClave_SituacionPorDefecto(t *testing.T) {
	svc := hacienda.NewClaveService()
	got, err := svc.Generate(buildClaveParams())
	require.NoError(t, err)
	assert.Equal(t, byte('1'), got.Clave[41], "La situación por defecto es 1 (normal)")
}

// TestGenerateClave_PrefijoPais verifica el código de país fijo 506.
func TestGenerateClave_PrefijoPais(t *testing.T) {
	svc := hacienda.NewClaveService()
	got, err := svc.Generate(buildClaveParams())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.Clave, "506"))
}

// ── Errores de validación ─────────────────────────────────────────────────────

func TestGenerateClave_ErrorSiNilParams(t *testing.T) {
	svc := hacienda.NewClaveService()
	_, err := svc.Generate(nil)
	assert.Error(t, err)
}

func TestGenerateClave_ErrorSiEmisorVacio(t *testing.T) {
	svc := hacienda.NewClaveService()
	p := buildClaveParams()
	p.EmisorNumero = ""
	_, err := svc.Generate(p)
	assert.Error(t, err, "Sin identificación del emisor debe fallar")
}

func TestGenerateClave_ErrorSiEmisorMuyLargo(t *testing.T) {
	svc := hacienda.NewClaveService()
	p := buildClaveParams()
	p.EmisorNumero = "1234567890123" // 13 dígitos
	_, err := svc.Generate(p)
	assert.Error(t, err)
}

func TestGenerateClave_ErrorSiSucursalFueraDeRango(t *testing.T) {
	svc := hacienda.NewClaveService()
	p := buildClaveParams()
	p.Branch = 1000
	_, err := svc.Generate(p)
	assert.Error(t, err)
}

func TestGenerateClave_ErrorSiSecuencialCero(t *testing.T) {
	svc := hacienda.NewClaveService()
	p := buildClaveParams()
	p.Sequential = 0
	_, err := svc.Generate(p)
	assert.Error(t, err)
}

func TestGenerateClave_ErrorSiTipoInvalido(t *testing.T) {
	svc := hacienda.NewClaveService()
	p := buildClaveParams()
	p.DocType = "1"
	_, err := svc.Generate(p)
	assert.Error(t, err, "El tipo de comprobante debe ser de 2 dígitos")
}

func TestGenerateClave_ErrorSiSituacionInvalida(t *testing.T) {
	svc := hacienda.NewClaveService()
	p := buildClaveParams()
	p.Situacion = "4"
	_, err := svc.Generate(p)
	assert.Error(t, err)
}

// ── helper ────────────────────────────────────────────────────────────────────

func buildClaveParams() *hacienda.ClaveParams {
	return &hacienda.ClaveParams{
		Date:         time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		EmisorNumero: "3101123456",
		Branch:       1,
		Terminal:     1,
		DocType:      hacienda.DocTypeFactura,
		Sequential:   42,
		SecurityCode: "12345678",
	}
}
