// Servicio de firma digital XAdES-BES para comprobantes electrónicos v4.4.
// Inyecta <ds:Signature> como último hijo del elemento raíz.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/ucarion/c14n"
)

// XAdESSignatureService implementa la firma XAdES-BES enveloped.
type XAdESSignatureService struct{}

// NewXAdESSignatureService crea el servicio.
func NewXAdESSignatureService() *XAdESSignatureService {
	return &XAdESSignatureService{}
}

// Sign firma el comprobante y devuelve los bytes finales. Estos bytes son el
// artefacto definitivo: cualquier re-serialización posterior (pretty-print,
// reordenar atributos) invalida los digests de la firma.
//
// La firma lleva exactamente dos Reference:
//
//  1. URI=""  → documento completo, transform enveloped-signature + C14N
//     exclusivo, digest SHA-256.
//  2. URI="#...-signedprops" → xades:SignedProperties, C14N exclusivo,
//     digest SHA-256.
//
// Si cualquier paso falla, la operación aborta: nunca se adjunta una firma
// de relleno no criptográfica.
func (s *XAdESSignatureService) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("hacienda: XML vacío")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("hacienda: el certificado debe incluir llave privada RSA")
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("hacienda: certificado sin cadena")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("hacienda: parsear certificado: %w", err)
	}

	// 0) Normalizar: a partir de aquí toda serialización sale del mismo árbol,
	// para que el digest del documento coincida con los bytes finales menos
	// la firma.
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("hacienda: parsear XML a firmar: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("hacienda: documento sin elemento raíz")
	}
	normalized, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("hacienda: serializar XML: %w", err)
	}

	// 1) Digest del documento completo (Reference URI="").
	canonicalDoc, err := canonicalize(normalized)
	if err != nil {
		return nil, fmt.Errorf("hacienda: canonicalizar documento: %w", err)
	}
	docDigest := sha256.Sum256(canonicalDoc)

	// 2) SignedProperties y su digest (Reference #<id>-signedprops).
	sigID := "id-" + uuid.NewString()
	signingTime := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	signedPropsXML := s.buildSignedProperties(sigID, signingTime, x509Cert)
	canonicalProps, err := canonicalize([]byte(signedPropsXML))
	if err != nil {
		return nil, fmt.Errorf("hacienda: canonicalizar SignedProperties: %w", err)
	}
	propsDigest := sha256.Sum256(canonicalProps)

	// 3) SignedInfo con ambas referencias; se canonicaliza y se firma RSA-SHA256.
	signedInfoXML := s.buildSignedInfo(sigID,
		base64.StdEncoding.EncodeToString(docDigest[:]),
		base64.StdEncoding.EncodeToString(propsDigest[:]))
	canonicalSignedInfo, err := canonicalize([]byte(signedInfoXML))
	if err != nil {
		return nil, fmt.Errorf("hacienda: canonicalizar SignedInfo: %w", err)
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("hacienda: firmar SignedInfo: %w", err)
	}

	// 4) Armar ds:Signature completo e inyectarlo como último hijo de la raíz.
	signatureXML := s.buildFullSignature(sigID, signedInfoXML, signedPropsXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(x509Cert.Raw))

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, fmt.Errorf("hacienda: parsear Signature generada: %w", err)
	}
	doc.Root().AddChild(sigDoc.Root())

	signed, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("hacienda: serializar XML firmado: %w", err)
	}
	return signed, nil
}

// canonicalize aplica C14N exclusivo sobre los bytes dados.
func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func (s *XAdESSignatureService) buildSignedInfo(sigID, docDigestB64, propsDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgExcC14N + `"></ds:CanonicalizationMethod>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA256 + `"></ds:SignatureMethod>`)
	// Reference 1: documento completo (enveloped)
	sb.WriteString(`<ds:Reference Id="` + sigID + `-ref0" URI="">`)
	sb.WriteString(`<ds:Transforms>`)
	sb.WriteString(`<ds:Transform Algorithm="` + TransformEnveloped + `"></ds:Transform>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgExcC14N + `"></ds:Transform>`)
	sb.WriteString(`</ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"></ds:DigestMethod>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	// Reference 2: SignedProperties
	sb.WriteString(`<ds:Reference Type="` + TypeSignedProperties + `" URI="#` + sigID + `-signedprops">`)
	sb.WriteString(`<ds:Transforms>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgExcC14N + `"></ds:Transform>`)
	sb.WriteString(`</ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"></ds:DigestMethod>`)
	sb.WriteString(`<ds:DigestValue>` + propsDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

// buildSignedProperties arma el fragmento exacto que se digiere y que se
// inyecta en QualifyingProperties. Ambos usos deben producir los mismos bytes
// canónicos, por eso se declaran aquí los dos namespaces visibles.
func (s *XAdESSignatureService) buildSignedProperties(sigID, signingTime string, cert *x509.Certificate) string {
	certDigest := sha1.Sum(cert.Raw)

	var sb strings.Builder
	sb.WriteString(`<xades:SignedProperties xmlns:ds="` + NamespaceDS + `" xmlns:xades="` + NamespaceXAdES + `" Id="` + sigID + `-signedprops">`)
	sb.WriteString(`<xades:SignedSignatureProperties>`)
	sb.WriteString(`<xades:SigningTime>` + signingTime + `</xades:SigningTime>`)
	sb.WriteString(`<xades:SigningCertificate>`)
	sb.WriteString(`<xades:Cert>`)
	sb.WriteString(`<xades:CertDigest>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA1 + `"></ds:DigestMethod>`)
	sb.WriteString(`<ds:DigestValue>` + base64.StdEncoding.EncodeToString(certDigest[:]) + `</ds:DigestValue>`)
	sb.WriteString(`</xades:CertDigest>`)
	sb.WriteString(`<xades:IssuerSerial>`)
	sb.WriteString(`<ds:X509IssuerName>` + escapeXML(cert.Issuer.String()) + `</ds:X509IssuerName>`)
	sb.WriteString(`<ds:X509SerialNumber>` + cert.SerialNumber.String() + `</ds:X509SerialNumber>`)
	sb.WriteString(`</xades:IssuerSerial>`)
	sb.WriteString(`</xades:Cert>`)
	sb.WriteString(`</xades:SigningCertificate>`)
	sb.WriteString(`<xades:SignaturePolicyIdentifier>`)
	sb.WriteString(`<xades:SignaturePolicyImplied></xades:SignaturePolicyImplied>`)
	sb.WriteString(`</xades:SignaturePolicyIdentifier>`)
	sb.WriteString(`</xades:SignedSignatureProperties>`)
	sb.WriteString(`</xades:SignedProperties>`)
	return sb.String()
}

func (s *XAdESSignatureService) buildFullSignature(sigID, signedInfoXML, signedPropsXML, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `" xmlns:xades="` + NamespaceXAdES + `" Id="` + sigID + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue Id="` + sigID + `-sigvalue">` + signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo>`)
	sb.WriteString(`<ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data>`)
	sb.WriteString(`</ds:KeyInfo>`)
	sb.WriteString(`<ds:Object>`)
	sb.WriteString(`<xades:QualifyingProperties Target="#` + sigID + `">`)
	sb.WriteString(signedPropsXML)
	sb.WriteString(`</xades:QualifyingProperties>`)
	sb.WriteString(`</ds:Object>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
