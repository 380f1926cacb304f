package hacienda_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tu-usuario/facturacion-cr/internal/domain"
	"github.com/tu-usuario/facturacion-cr/internal/infrastructure/hacienda"
	"github.com/tu-usuario/facturacion-cr/pkg/config"
)

// makeCert genera un certificado autofirmado con el serialNumber y CN dados.
// Al ser autofirmado, el CN del emisor es el mismo del subject, lo que permite
// simular certificados de sandbox (CN con "SANDBOX") y de producción.
func makeCert(t *testing.T, subjectSerial, cn string, notAfter time.Time) (tls.Certificate, *rsa.PrivateKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(123456),
		Subject: pkix.Name{
			CommonName:   cn,
			SerialNumber: subjectSerial,
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv, Leaf: leaf}, priv
}

func writePEMPair(t *testing.T, cert tls.Certificate, priv *rsa.PrivateKey) (certPath, keyPath string) {
	t.Helper()
	dir := t.TempDir()

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	require.NoError(t, os.WriteFile(certPath, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))
	return certPath, keyPath
}

// TestExtractIdentity_CPJ extrae tipo 02 y el número sin guiones de un
// certificado con serialNumber CPJ.
func TestExtractIdentity_CPJ(t *testing.T) {
	cert, _ := makeCert(t, "CPJ-3-101-123456", "EMPRESA SA (FIRMA)", time.Now().Add(24*time.Hour))

	identity, err := hacienda.ExtractIdentity(cert)
	require.NoError(t, err)

	assert.Equal(t, "02", identity.Tipo)
	assert.Equal(t, "3101123456", identity.Numero)
	assert.Equal(t, "prod", identity.Environment)
}

// TestExtractIdentity_CPF extrae tipo 01 de una cédula física.
func TestExtractIdentity_CPF(t *testing.T) {
	cert, _ := makeCert(t, "CPF-01-0234-0567", "JUAN PEREZ (FIRMA)", time.Now().Add(24*time.Hour))

	identity, err := hacienda.ExtractIdentity(cert)
	require.NoError(t, err)

	assert.Equal(t, "01", identity.Tipo)
	assert.Equal(t, "0102340567", identity.Numero)
}

// TestExtractIdentity_SandboxPorEmisor clasifica como stag el certificado
// cuyo CA lleva SANDBOX en el CN.
func TestExtractIdentity_SandboxPorEmisor(t *testing.T) {
	cert, _ := makeCert(t, "CPJ-3-101-123456", "CA SANDBOX PRUEBAS", time.Now().Add(24*time.Hour))

	identity, err := hacienda.ExtractIdentity(cert)
	require.NoError(t, err)
	assert.Equal(t, "stag", identity.Environment)
}

// TestCheckEnvironmentConsistency_Descalce falla rápido ante un certificado
// del entorno equivocado.
func TestCheckEnvironmentConsistency_Descalce(t *testing.T) {
	cert, _ := makeCert(t, "CPJ-3-101-123456", "CA SANDBOX PRUEBAS", time.Now().Add(24*time.Hour))
	identity, err := hacienda.ExtractIdentity(cert)
	require.NoError(t, err)

	err = hacienda.CheckEnvironmentConsistency(identity, "prod")
	assert.ErrorIs(t, err, domain.ErrEntornoCertificado)

	assert.NoError(t, hacienda.CheckEnvironmentConsistency(identity, "stag"))
	assert.NoError(t, hacienda.CheckEnvironmentConsistency(identity, "dev"),
		"En dev no se aplica la guardia de entorno")
}

// TestLoadIdentity_DesdePEM carga el par PEM y aplica las validaciones.
func TestLoadIdentity_DesdePEM(t *testing.T) {
	cert, priv := makeCert(t, "CPJ-3-101-123456", "CA SANDBOX PRUEBAS", time.Now().Add(24*time.Hour))
	certPath, keyPath := writePEMPair(t, cert, priv)

	svc := hacienda.NewCertService(config.HaciendaConfig{
		Env:         "stag",
		CertPEMPath: certPath,
		KeyPEMPath:  keyPath,
	})

	identity, err := svc.LoadIdentity()
	require.NoError(t, err)
	assert.Equal(t, "3101123456", identity.Numero)
	assert.Equal(t, "stag", identity.Environment)
}

// TestLoadIdentity_ErrorSiVencido nunca firma con certificado vencido.
func TestLoadIdentity_ErrorSiVencido(t *testing.T) {
	cert, priv := makeCert(t, "CPJ-3-101-123456", "CA SANDBOX PRUEBAS", time.Now().Add(-time.Minute))
	certPath, keyPath := writePEMPair(t, cert, priv)

	svc := hacienda.NewCertService(config.HaciendaConfig{
		Env:         "stag",
		CertPEMPath: certPath,
		KeyPEMPath:  keyPath,
	})

	_, err := svc.LoadIdentity()
	assert.ErrorIs(t, err, domain.ErrCertificado)
}

// TestLoadIdentity_ErrorSiEntornoEquivocado la guardia corta antes de firmar.
func TestLoadIdentity_ErrorSiEntornoEquivocado(t *testing.T) {
	cert, priv := makeCert(t, "CPJ-3-101-123456", "CA SANDBOX PRUEBAS", time.Now().Add(24*time.Hour))
	certPath, keyPath := writePEMPair(t, cert, priv)

	svc := hacienda.NewCertService(config.HaciendaConfig{
		Env:         "prod",
		CertPEMPath: certPath,
		KeyPEMPath:  keyPath,
	})

	_, err := svc.LoadIdentity()
	assert.ErrorIs(t, err, domain.ErrEntornoCertificado)
}

func TestLoadIdentity_ErrorSiSinConfiguracion(t *testing.T) {
	svc := hacienda.NewCertService(config.HaciendaConfig{Env: "stag"})
	_, err := svc.LoadIdentity()
	assert.ErrorIs(t, err, domain.ErrCertificado)
}

// TestLoadIdentity_ArchivoInexistente distingue el archivo ausente de los
// demás fallos de carga.
func TestLoadIdentity_ArchivoInexistente(t *testing.T) {
	svc := hacienda.NewCertService(config.HaciendaConfig{
		Env:         "stag",
		CertP12Path: filepath.Join(t.TempDir(), "no-existe.p12"),
	})

	_, err := svc.LoadIdentity()
	assert.ErrorIs(t, err, domain.ErrCertNotFound)
	assert.ErrorIs(t, err, domain.ErrCertificado, "La causa específica sigue siendo parte de la familia")
}

// TestLoadIdentity_PassphraseIncorrecta una llave PEM cifrada con otra
// contraseña reporta la contraseña, no un contenedor corrupto.
func TestLoadIdentity_PassphraseIncorrecta(t *testing.T) {
	cert, priv := makeCert(t, "CPJ-3-101-123456", "CA SANDBOX PRUEBAS", time.Now().Add(24*time.Hour))
	dir := t.TempDir()

	certPath := filepath.Join(dir, "cert.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	require.NoError(t, os.WriteFile(certPath, certPEM, 0o600))

	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY",
		x509.MarshalPKCS1PrivateKey(priv), []byte("secreto-real"), x509.PEMCipherAES256)
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	svc := hacienda.NewCertService(config.HaciendaConfig{
		Env:           "stag",
		CertPEMPath:   certPath,
		KeyPEMPath:    keyPath,
		KeyPassphrase: "otra-cosa",
	})

	_, err = svc.LoadIdentity()
	assert.ErrorIs(t, err, domain.ErrBadPassphrase)
}

// TestLoadIdentity_AlgoritmoNoSoportado una llave cifrada con un algoritmo que
// la librería no implementa se reporta como formato no soportado.
func TestLoadIdentity_AlgoritmoNoSoportado(t *testing.T) {
	cert, _ := makeCert(t, "CPJ-3-101-123456", "CA SANDBOX PRUEBAS", time.Now().Add(24*time.Hour))
	dir := t.TempDir()

	certPath := filepath.Join(dir, "cert.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	require.NoError(t, os.WriteFile(certPath, certPEM, 0o600))

	keyPath := filepath.Join(dir, "key.pem")
	block := &pem.Block{
		Type: "RSA PRIVATE KEY",
		Headers: map[string]string{
			"Proc-Type": "4,ENCRYPTED",
			"DEK-Info":  "IDEA-CBC,0123456789ABCDEF",
		},
		Bytes: []byte("da igual, el algoritmo se rechaza antes"),
	}
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	svc := hacienda.NewCertService(config.HaciendaConfig{
		Env:           "stag",
		CertPEMPath:   certPath,
		KeyPEMPath:    keyPath,
		KeyPassphrase: "secreto",
	})

	_, err := svc.LoadIdentity()
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

// TestLoadIdentity_ContenedorCorrupto bytes que no son PKCS#12 válido.
func TestLoadIdentity_ContenedorCorrupto(t *testing.T) {
	svc := hacienda.NewCertService(config.HaciendaConfig{
		Env:           "stag",
		CertP12Base64: base64.StdEncoding.EncodeToString([]byte("esto no es un p12")),
		CertPassword:  "secreto",
	})

	_, err := svc.LoadIdentity()
	assert.ErrorIs(t, err, domain.ErrMalformedContainer)
}

// TestDiagnose_ReporteCompleto el diagnóstico acumula problemas sin fallar.
func TestDiagnose_ReporteCompleto(t *testing.T) {
	cert, priv := makeCert(t, "CPJ-3-101-123456", "CA SANDBOX PRUEBAS", time.Now().Add(10*24*time.Hour))
	certPath, keyPath := writePEMPair(t, cert, priv)

	svc := hacienda.NewCertService(config.HaciendaConfig{
		Env:         "prod", // descalce a propósito
		CertPEMPath: certPath,
		KeyPEMPath:  keyPath,
	})

	d, err := svc.Diagnose()
	require.NoError(t, err, "Diagnose reporta problemas, no falla por ellos")

	assert.Equal(t, "stag", d.Environment)
	assert.True(t, d.EnvMismatch)
	assert.True(t, d.KeyIsRSA)
	assert.Equal(t, 2048, d.KeyBits)
	assert.False(t, d.Expired)
	assert.NotEmpty(t, d.Problems, "Debe reportar el descalce de entorno y la vigencia corta")
	assert.Equal(t, "3101123456", d.Numero)
}
