package hacienda

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/tu-usuario/facturacion-cr/internal/domain"
	"github.com/tu-usuario/facturacion-cr/pkg/config"
	pkghacienda "github.com/tu-usuario/facturacion-cr/pkg/hacienda"
)

// SigningIdentity certificado de firma cargado y validado, con la identidad
// del emisor extraída del subject.
type SigningIdentity struct {
	Certificate tls.Certificate
	Leaf        *x509.Certificate

	Tipo   string // Tipo de identificación deducido del serialNumber del subject
	Numero string // Número de identificación, solo dígitos
	// Environment deducido del emisor del certificado: "stag" si el CA es de
	// pruebas (SANDBOX/TEST), "prod" en caso contrario.
	Environment string

	NotBefore time.Time
	NotAfter  time.Time
}

// CertService carga certificados de firma desde .p12 (archivo o base64) o par
// PEM, y valida que correspondan al entorno configurado.
type CertService struct {
	cfg config.HaciendaConfig
}

// NewCertService crea el servicio.
func NewCertService(cfg config.HaciendaConfig) *CertService {
	return &CertService{cfg: cfg}
}

// LoadIdentity carga el material de firma según la configuración, extrae la
// identidad del subject y aplica la guardia de entorno. Cualquier problema es
// fatal: nunca se firma con un certificado dudoso.
func (s *CertService) LoadIdentity() (*SigningIdentity, error) {
	cert, err := s.loadCertificate()
	if err != nil {
		return nil, err
	}

	identity, err := ExtractIdentity(cert)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if now.Before(identity.NotBefore) {
		return nil, fmt.Errorf("%w: aún no es válido (inicia %s)", domain.ErrCertificado, identity.NotBefore.Format(time.RFC3339))
	}
	if now.After(identity.NotAfter) {
		return nil, fmt.Errorf("%w: venció el %s", domain.ErrCertificado, identity.NotAfter.Format(time.RFC3339))
	}

	if !s.cfg.SkipEnvCertGuard {
		if err := CheckEnvironmentConsistency(identity, s.cfg.Env); err != nil {
			return nil, err
		}
	}
	return identity, nil
}

// loadCertificate resuelve la fuente del certificado: base64 inline, archivo
// .p12/.pfx, o par PEM.
func (s *CertService) loadCertificate() (tls.Certificate, error) {
	switch {
	case s.cfg.CertP12Base64 != "":
		data, err := base64.StdEncoding.DecodeString(s.cfg.CertP12Base64)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("%w: decodificar p12 base64: %v", domain.ErrMalformedContainer, err)
		}
		return decodeP12(data, s.cfg.CertPassword)

	case s.cfg.CertP12Path != "":
		data, err := os.ReadFile(s.cfg.CertP12Path)
		if err != nil {
			if os.IsNotExist(err) {
				return tls.Certificate{}, fmt.Errorf("%w: %s", domain.ErrCertNotFound, s.cfg.CertP12Path)
			}
			return tls.Certificate{}, fmt.Errorf("%w: leer %s: %v", domain.ErrCertificado, s.cfg.CertP12Path, err)
		}
		return decodeP12(data, s.cfg.CertPassword)

	case s.cfg.CertPEMPath != "" && s.cfg.KeyPEMPath != "":
		return loadPEMPair(s.cfg.CertPEMPath, s.cfg.KeyPEMPath, s.cfg.KeyPassphrase)

	default:
		return tls.Certificate{}, fmt.Errorf("%w: no hay certificado configurado", domain.ErrCertificado)
	}
}

// decodeP12 decodifica un contenedor PKCS#12. El password puede ser vacío.
// Distingue la causa del fallo: contraseña incorrecta, algoritmo no soportado
// por la librería, o contenedor corrupto.
func decodeP12(data []byte, password string) (tls.Certificate, error) {
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		var notImpl pkcs12.NotImplementedError
		switch {
		case errors.Is(err, pkcs12.ErrIncorrectPassword):
			return tls.Certificate{}, fmt.Errorf("%w: decodificar p12: %v", domain.ErrBadPassphrase, err)
		case errors.As(err, &notImpl):
			return tls.Certificate{}, fmt.Errorf("%w: decodificar p12: %v", domain.ErrUnsupportedFormat, err)
		default:
			return tls.Certificate{}, fmt.Errorf("%w: decodificar p12: %v", domain.ErrMalformedContainer, err)
		}
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// loadPEMPair carga certificado y llave desde archivos PEM separados. Si la
// llave está cifrada (PEM legado con DEK-Info) se descifra con el passphrase.
func loadPEMPair(certPath, keyPath, passphrase string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		if os.IsNotExist(err) {
			return tls.Certificate{}, fmt.Errorf("%w: %s", domain.ErrCertNotFound, certPath)
		}
		return tls.Certificate{}, fmt.Errorf("%w: leer certificado PEM: %v", domain.ErrCertificado, err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return tls.Certificate{}, fmt.Errorf("%w: %s", domain.ErrCertNotFound, keyPath)
		}
		return tls.Certificate{}, fmt.Errorf("%w: leer llave PEM: %v", domain.ErrCertificado, err)
	}

	if passphrase != "" {
		block, _ := pem.Decode(keyPEM)
		if block == nil {
			return tls.Certificate{}, fmt.Errorf("%w: llave PEM ilegible", domain.ErrMalformedContainer)
		}
		if x509.IsEncryptedPEMBlock(block) {
			der, err := x509.DecryptPEMBlock(block, []byte(passphrase))
			if err != nil {
				if errors.Is(err, x509.IncorrectPasswordError) {
					return tls.Certificate{}, fmt.Errorf("%w: descifrar llave PEM", domain.ErrBadPassphrase)
				}
				return tls.Certificate{}, fmt.Errorf("%w: descifrar llave PEM: %v", domain.ErrUnsupportedFormat, err)
			}
			keyPEM = pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der})
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: cargar par PEM: %v", domain.ErrMalformedContainer, err)
	}
	if cert.Leaf == nil && len(cert.Certificate) > 0 {
		cert.Leaf, _ = x509.ParseCertificate(cert.Certificate[0])
	}
	return cert, nil
}

// ExtractIdentity extrae tipo y número de identificación del subject del
// certificado y deduce el entorno a partir del CA emisor.
func ExtractIdentity(cert tls.Certificate) (*SigningIdentity, error) {
	leaf := cert.Leaf
	if leaf == nil {
		if len(cert.Certificate) == 0 {
			return nil, fmt.Errorf("%w: sin certificado hoja", domain.ErrCertificado)
		}
		var err error
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("%w: parsear certificado hoja: %v", domain.ErrCertificado, err)
		}
	}
	if _, ok := cert.PrivateKey.(*rsa.PrivateKey); !ok {
		return nil, fmt.Errorf("%w: la llave privada no es RSA", domain.ErrCertificado)
	}

	tipo, numero, err := pkghacienda.ParseSubjectSerialNumber(leaf.Subject.SerialNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCertificado, err)
	}

	return &SigningIdentity{
		Certificate: cert,
		Leaf:        leaf,
		Tipo:        tipo,
		Numero:      numero,
		Environment: environmentFromIssuer(leaf),
		NotBefore:   leaf.NotBefore,
		NotAfter:    leaf.NotAfter,
	}, nil
}

// environmentFromIssuer clasifica el certificado por su CA: los certificados
// de pruebas del SNCD llevan SANDBOX o TEST en el CN del emisor.
func environmentFromIssuer(leaf *x509.Certificate) string {
	cn := strings.ToUpper(leaf.Issuer.CommonName)
	if strings.Contains(cn, "SANDBOX") || strings.Contains(cn, "TEST") || strings.Contains(cn, "PRUEBA") {
		return "stag"
	}
	return "prod"
}

// CheckEnvironmentConsistency falla temprano si el certificado no corresponde
// al entorno configurado: firmar producción con un certificado de pruebas
// (o viceversa) garantiza el rechazo del comprobante.
func CheckEnvironmentConsistency(identity *SigningIdentity, env string) error {
	if env == "dev" {
		return nil
	}
	if identity.Environment != env {
		return fmt.Errorf("%w: el certificado es de %q y el entorno configurado es %q",
			domain.ErrEntornoCertificado, identity.Environment, env)
	}
	return nil
}

// Diagnosis reporte de diagnóstico de un certificado de firma.
type Diagnosis struct {
	Subject      string
	Issuer       string
	Serial       string
	Tipo         string
	Numero       string
	Environment  string
	NotBefore    time.Time
	NotAfter     time.Time
	Expired      bool
	DaysToExpiry int
	KeyIsRSA     bool
	KeyBits      int
	EnvMismatch  bool
	Problems     []string
}

// Diagnose inspecciona el certificado configurado y devuelve un reporte
// apto para mostrar en consola o persistir. No falla por problemas del
// certificado: los acumula en Problems.
func (s *CertService) Diagnose() (*Diagnosis, error) {
	cert, err := s.loadCertificate()
	if err != nil {
		return nil, err
	}

	d := &Diagnosis{}
	leaf := cert.Leaf
	if leaf == nil && len(cert.Certificate) > 0 {
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("%w: parsear certificado: %v", domain.ErrCertificado, err)
		}
	}
	if leaf == nil {
		return nil, fmt.Errorf("%w: contenedor sin certificado", domain.ErrCertificado)
	}

	d.Subject = leaf.Subject.String()
	d.Issuer = leaf.Issuer.String()
	d.Serial = leaf.SerialNumber.String()
	d.NotBefore = leaf.NotBefore
	d.NotAfter = leaf.NotAfter
	d.Environment = environmentFromIssuer(leaf)

	now := time.Now()
	d.Expired = now.After(leaf.NotAfter)
	d.DaysToExpiry = int(leaf.NotAfter.Sub(now).Hours() / 24)
	if d.Expired {
		d.Problems = append(d.Problems, fmt.Sprintf("certificado vencido el %s", leaf.NotAfter.Format("2006-01-02")))
	} else if d.DaysToExpiry <= 30 {
		d.Problems = append(d.Problems, fmt.Sprintf("certificado vence en %d días", d.DaysToExpiry))
	}

	if priv, ok := cert.PrivateKey.(*rsa.PrivateKey); ok {
		d.KeyIsRSA = true
		d.KeyBits = priv.N.BitLen()
		if err := priv.Validate(); err != nil {
			d.Problems = append(d.Problems, "la llave privada no pasa la validación RSA")
		}
		if pub, ok := leaf.PublicKey.(*rsa.PublicKey); !ok || pub.N.Cmp(priv.N) != 0 {
			d.Problems = append(d.Problems, "la llave privada no corresponde al certificado")
		}
	} else {
		d.Problems = append(d.Problems, "la llave privada no es RSA")
	}

	if tipo, numero, err := pkghacienda.ParseSubjectSerialNumber(leaf.Subject.SerialNumber); err != nil {
		d.Problems = append(d.Problems, err.Error())
	} else {
		d.Tipo = tipo
		d.Numero = numero
	}

	if s.cfg.Env != "dev" && d.Environment != s.cfg.Env {
		d.EnvMismatch = true
		d.Problems = append(d.Problems, fmt.Sprintf("certificado de %q con entorno configurado %q", d.Environment, s.cfg.Env))
	}
	return d, nil
}
