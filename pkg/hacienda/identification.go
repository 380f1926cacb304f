package hacienda

import (
	"fmt"
	"regexp"
	"strings"
)

// Patrones del campo serialNumber del subject en certificados emitidos por
// los CA autorizados (BCCR / Sistema Nacional de Certificación Digital).
var (
	reCPF   = regexp.MustCompile(`^CPF-(\d{2})-(\d{4})-(\d{4})$`)
	reCPJ   = regexp.MustCompile(`^CPJ-(\d)-(\d{3})-(\d{6})$`)
	reDIMEX = regexp.MustCompile(`^DIMEX-(\d{11,12})$`)
	reNITE  = regexp.MustCompile(`^NITE-(\d{10})$`)
	reDigit = regexp.MustCompile(`\d+`)
)

// ParseSubjectSerialNumber extrae tipo y número de identificación del
// serialNumber del subject de un certificado de firma.
// Devuelve el número solo con dígitos (sin guiones ni prefijo).
func ParseSubjectSerialNumber(serial string) (tipo, numero string, err error) {
	s := strings.ToUpper(strings.TrimSpace(serial))

	switch {
	case reCPF.MatchString(s):
		return IdentificationTypeCedulaFisica, onlyDigits(s), nil
	case reCPJ.MatchString(s):
		return IdentificationTypeCedulaJuridica, onlyDigits(s), nil
	case reDIMEX.MatchString(s):
		return IdentificationTypeDIMEX, onlyDigits(s), nil
	case reNITE.MatchString(s):
		return IdentificationTypeNITE, onlyDigits(s), nil
	}

	// Algunos certificados traen el número sin prefijo.
	digits := onlyDigits(s)
	if digits == s && digits != "" {
		return InferIdentificationType(digits), digits, nil
	}

	return "", "", fmt.Errorf("serialNumber %q no coincide con un formato de identificación conocido", serial)
}

// InferIdentificationType deduce el tipo de identificación a partir del número.
// Reglas usuales: 9 dígitos = física, 10 iniciando en 3 = jurídica,
// 10 iniciando en 4 = NITE, 11-12 dígitos = DIMEX.
func InferIdentificationType(numero string) string {
	switch {
	case len(numero) == 9:
		return IdentificationTypeCedulaFisica
	case len(numero) == 10 && strings.HasPrefix(numero, "3"):
		return IdentificationTypeCedulaJuridica
	case len(numero) == 10 && strings.HasPrefix(numero, "4"):
		return IdentificationTypeNITE
	case len(numero) == 11 || len(numero) == 12:
		return IdentificationTypeDIMEX
	default:
		return IdentificationTypeCedulaFisica
	}
}

func onlyDigits(s string) string {
	return strings.Join(reDigit.FindAllString(s, -1), "")
}
