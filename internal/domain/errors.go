package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound           = errors.New("recurso no encontrado")
	ErrInvalidInput       = errors.New("entrada inválida")
	ErrDuplicate          = errors.New("recurso duplicado")
	ErrUnauthorized       = errors.New("no autorizado")
	ErrForbidden          = errors.New("acceso denegado")
	ErrConflict           = errors.New("conflicto con el estado actual")
	ErrCertificado        = errors.New("certificado de firma inválido")
	ErrEntornoCertificado = errors.New("certificado no corresponde al entorno configurado")
	ErrDocumentoNoFirmado = errors.New("el comprobante aún no está firmado")
)

// Causas específicas de fallo al cargar el certificado de firma. Todas
// envuelven ErrCertificado, así el llamador puede tratar la familia completa
// o distinguir la causa concreta.
var (
	ErrCertNotFound       = fmt.Errorf("%w: archivo no encontrado", ErrCertificado)
	ErrBadPassphrase      = fmt.Errorf("%w: contraseña incorrecta", ErrCertificado)
	ErrUnsupportedFormat  = fmt.Errorf("%w: formato no soportado", ErrCertificado)
	ErrMalformedContainer = fmt.Errorf("%w: contenedor corrupto", ErrCertificado)
)
