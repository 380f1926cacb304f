// Package hacienda: generación de la clave numérica del comprobante
// electrónico v4.4 (50 dígitos) y su número consecutivo (20 dígitos),
// según el Anexo de Estructuras del Ministerio de Hacienda (Costa Rica).
package hacienda

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Tipos de comprobante de uso frecuente (dígitos 29-30 del consecutivo).
const (
	DocTypeFactura     = "01" // Factura electrónica
	DocTypeNotaCredito = "03" // Nota de crédito electrónica
	DocTypeTiquete     = "04" // Tiquete electrónico
)

// Situación del comprobante (dígito 43 de la clave).
const (
	SituacionNormal       = "1" // Emisión normal en línea
	SituacionContingencia = "2" // Contingencia
	SituacionSinInternet  = "3" // Sin conexión a internet
)

// ClaveParams contiene los datos para construir la clave en el orden exigido.
type ClaveParams struct {
	Date         time.Time // Fecha de emisión (zona local del emisor)
	EmisorNumero string    // Identificación del emisor, solo dígitos (máx 12)
	Branch       int       // Sucursal, 1-999
	Terminal     int       // Terminal / punto de venta, 1-99999
	DocType      string    // Tipo de comprobante, 2 dígitos (Nota 1)
	Sequential   int64     // Consecutivo interno, 1 a 9999999999
	Situacion    string    // Vacío = "1" (normal)
	SecurityCode string    // 8 dígitos; vacío = aleatorio
}

// ClaveService genera claves numéricas de 50 dígitos.
type ClaveService struct{}

// NewClaveService crea el servicio.
func NewClaveService() *ClaveService {
	return &ClaveService{}
}

// Generated es el resultado: la clave completa y el consecutivo que la integra.
type Generated struct {
	Clave       string // 50 dígitos
	Consecutivo string // 20 dígitos (posiciones 22-41 de la clave)
}

// Generate construye la clave numérica:
//
//	país(3) + día(2) + mes(2) + año(2) + identificación emisor(12, relleno con
//	ceros a la izquierda) + consecutivo(20) + situación(1) + código de seguridad(8)
//
// El consecutivo son sucursal(3) + terminal(5) + tipo de comprobante(2) +
// número secuencial(10). El código de seguridad es aleatorio y no se deriva
// del contenido del documento.
func (s *ClaveService) Generate(p *ClaveParams) (*Generated, error) {
	if p == nil {
		return nil, fmt.Errorf("hacienda: ClaveParams es obligatorio")
	}
	if p.Date.IsZero() {
		return nil, fmt.Errorf("hacienda: fecha de emisión es obligatoria")
	}

	emisor := onlyDigits(p.EmisorNumero)
	if emisor == "" {
		return nil, fmt.Errorf("hacienda: identificación del emisor es obligatoria")
	}
	if len(emisor) > 12 {
		return nil, fmt.Errorf("hacienda: identificación del emisor excede 12 dígitos: %q", p.EmisorNumero)
	}

	if p.Branch < 1 || p.Branch > 999 {
		return nil, fmt.Errorf("hacienda: sucursal %d fuera de rango (1-999)", p.Branch)
	}
	if p.Terminal < 1 || p.Terminal > 99999 {
		return nil, fmt.Errorf("hacienda: terminal %d fuera de rango (1-99999)", p.Terminal)
	}
	if len(p.DocType) != 2 || onlyDigits(p.DocType) != p.DocType {
		return nil, fmt.Errorf("hacienda: tipo de comprobante %q inválido (2 dígitos)", p.DocType)
	}
	if p.Sequential < 1 || p.Sequential > 9_999_999_999 {
		return nil, fmt.Errorf("hacienda: consecutivo %d fuera de rango (1-9999999999)", p.Sequential)
	}

	situacion := p.Situacion
	if situacion == "" {
		situacion = SituacionNormal
	}
	switch situacion {
	case SituacionNormal, SituacionContingencia, SituacionSinInternet:
	default:
		return nil, fmt.Errorf("hacienda: situación %q inválida (1, 2 o 3)", situacion)
	}

	security := p.SecurityCode
	if security == "" {
		var err error
		security, err = randomSecurityCode()
		if err != nil {
			return nil, fmt.Errorf("hacienda: generando código de seguridad: %w", err)
		}
	}
	if len(security) != 8 || onlyDigits(security) != security {
		return nil, fmt.Errorf("hacienda: código de seguridad %q inválido (8 dígitos)", p.SecurityCode)
	}

	consecutivo := fmt.Sprintf("%03d%05d%s%010d", p.Branch, p.Terminal, p.DocType, p.Sequential)

	clave := "506" +
		p.Date.Format("020106") +
		fmt.Sprintf("%012s", emisor) +
		consecutivo +
		situacion +
		security

	if len(clave) != 50 {
		return nil, fmt.Errorf("hacienda: clave generada de %d dígitos, se esperaban 50", len(clave))
	}

	return &Generated{Clave: clave, Consecutivo: consecutivo}, nil
}

// randomSecurityCode genera 8 dígitos con crypto/rand.
func randomSecurityCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}

// onlyDigits deja solo dígitos 0-9.
func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
