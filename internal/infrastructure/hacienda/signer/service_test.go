package signer_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tu-usuario/facturacion-cr/internal/infrastructure/hacienda/signer"
)

const testUnsignedXML = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<TiqueteElectronico xmlns="https://cdn.comprobanteselectronicos.go.cr/xml-schemas/v4.4/tiqueteElectronico">` +
	`<Clave>50615032600310112345600100001040000000042112345678</Clave>` +
	`<NumeroConsecutivo>00100001040000000042</NumeroConsecutivo>` +
	`<FechaEmision>2026-03-15T10:30:00-06:00</FechaEmision>` +
	`<Emisor><Nombre>Comercial El Roble S.A.</Nombre>` +
	`<Identificacion><Tipo>02</Tipo><Numero>3101123456</Numero></Identificacion></Emisor>` +
	`</TiqueteElectronico>`

// ──────────────────────────────────────────────────────────────────────────────
// TestSign_FirmaYVerifica firma un comprobante con un certificado autofirmado
// y verifica la firma recalculando digests y SignatureValue sobre los bytes
// finales. Es el round-trip completo: si la canonicalización, el orden de
// inyección o la serialización cambian de forma incompatible, este test falla.
// ──────────────────────────────────────────────────────────────────────────────

func TestSign_FirmaYVerifica(t *testing.T) {
	svc := signer.NewXAdESSignatureService()
	cert := buildTestCertificate(t)

	signed, err := svc.Sign([]byte(testUnsignedXML), cert)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	require.NoError(t, svc.Verify(signed),
		"La firma recién generada debe verificar sobre los bytes exactos")
}

// TestSign_EstructuraXAdES verifica la estructura: firma como último hijo de
// la raíz, exactamente dos Reference (documento y SignedProperties), RSA-SHA256
// y política implícita.
func TestSign_EstructuraXAdES(t *testing.T) {
	svc := signer.NewXAdESSignatureService()
	signed, err := svc.Sign([]byte(testUnsignedXML), buildTestCertificate(t))
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	root := doc.Root()

	children := root.ChildElements()
	require.NotEmpty(t, children)
	sig := children[len(children)-1]
	assert.Equal(t, "Signature", sig.Tag, "ds:Signature debe ser el último hijo de la raíz")

	refs := sig.FindElements("SignedInfo/Reference")
	require.Len(t, refs, 2, "XAdES-BES lleva exactamente dos Reference")

	assert.Equal(t, "", refs[0].SelectAttrValue("URI", "x"),
		"La primera Reference cubre el documento completo (URI vacío)")
	assert.Contains(t, refs[0].FindElement("Transforms/Transform").SelectAttrValue("Algorithm", ""),
		"enveloped-signature")

	assert.Equal(t, signer.TypeSignedProperties, refs[1].SelectAttrValue("Type", ""))
	assert.True(t, strings.HasPrefix(refs[1].SelectAttrValue("URI", ""), "#id-"))

	method := sig.FindElement("SignedInfo/SignatureMethod")
	assert.Equal(t, signer.AlgRSASHA256, method.SelectAttrValue("Algorithm", ""))

	assert.NotNil(t, sig.FindElement("Object/QualifyingProperties/SignedProperties/SignedSignatureProperties/SignaturePolicyIdentifier/SignaturePolicyImplied"),
		"XAdES-BES usa política de firma implícita")
	assert.NotNil(t, sig.FindElement("Object/QualifyingProperties/SignedProperties/SignedSignatureProperties/SigningTime"))
}

// TestSign_CertDigestSHA1 verifica que el digest del certificado en
// SigningCertificate usa SHA-1 (exigencia del validador de Hacienda) aunque
// los digests del documento sean SHA-256.
func TestSign_CertDigestSHA1(t *testing.T) {
	svc := signer.NewXAdESSignatureService()
	signed, err := svc.Sign([]byte(testUnsignedXML), buildTestCertificate(t))
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	method := doc.FindElement("//SigningCertificate/Cert/CertDigest/DigestMethod")
	require.NotNil(t, method)
	assert.Equal(t, signer.AlgSHA1, method.SelectAttrValue("Algorithm", ""))
}

// TestSign_ReserializarRompeFirma documenta el invariante central: los bytes
// firmados son el artefacto final. Un pretty-print posterior (re-serialización
// con sangría) debe invalidar la verificación.
func TestSign_ReserializarRompeFirma(t *testing.T) {
	svc := signer.NewXAdESSignatureService()
	signed, err := svc.Sign([]byte(testUnsignedXML), buildTestCertificate(t))
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	doc.Indent(2)
	pretty, err := doc.WriteToBytes()
	require.NoError(t, err)

	assert.Error(t, svc.Verify(pretty),
		"Re-serializar el XML firmado debe invalidar los digests")
}

// TestSign_IdsUnicosPorFirma verifica que cada firma lleva un identificador
// aleatorio nuevo.
func TestSign_IdsUnicosPorFirma(t *testing.T) {
	svc := signer.NewXAdESSignatureService()
	cert := buildTestCertificate(t)

	s1, err := svc.Sign([]byte(testUnsignedXML), cert)
	require.NoError(t, err)
	s2, err := svc.Sign([]byte(testUnsignedXML), cert)
	require.NoError(t, err)

	assert.NotEqual(t, signatureID(t, s1), signatureID(t, s2))
}

// ── Errores ──────────────────────────────────────────────────────────────────

func TestSign_ErrorSiXMLVacio(t *testing.T) {
	svc := signer.NewXAdESSignatureService()
	_, err := svc.Sign(nil, buildTestCertificate(t))
	assert.Error(t, err)
}

func TestSign_ErrorSiXMLMalformado(t *testing.T) {
	svc := signer.NewXAdESSignatureService()
	_, err := svc.Sign([]byte("<sin-cerrar>"), buildTestCertificate(t))
	assert.Error(t, err, "Un documento malformado debe abortar, nunca firmarse a medias")
}

func TestSign_ErrorSiLlaveNoRSA(t *testing.T) {
	svc := signer.NewXAdESSignatureService()
	cert := buildTestCertificate(t)
	cert.PrivateKey = nil
	_, err := svc.Sign([]byte(testUnsignedXML), cert)
	assert.Error(t, err)
}

func TestVerify_ErrorSiSinFirma(t *testing.T) {
	svc := signer.NewXAdESSignatureService()
	err := svc.Verify([]byte(testUnsignedXML))
	assert.Error(t, err)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func buildTestCertificate(t *testing.T) tls.Certificate {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(987654321),
		Subject: pkix.Name{
			CommonName:   "COMERCIAL EL ROBLE SOCIEDAD ANONIMA (FIRMA)",
			SerialNumber: "CPJ-3-101-123456",
		},
		Issuer:                pkix.Name{CommonName: "CA SANDBOX DE PRUEBAS"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}
}

func signatureID(t *testing.T, signed []byte) string {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	sig := doc.FindElement("//Signature")
	require.NotNil(t, sig)
	return sig.SelectAttrValue("Id", "")
}
