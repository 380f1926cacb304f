// Verificación de la firma XAdES-BES generada por este mismo servicio.
// Recalcula digests y firma a partir de los bytes finales; sirve como
// control de integridad antes de persistir o enviar el comprobante.

package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Verify comprueba que los digests y el valor de firma del comprobante firmado
// siguen siendo válidos para estos bytes exactos. Falla si el documento fue
// re-serializado después de firmar.
func (s *XAdESSignatureService) Verify(signedXML []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return fmt.Errorf("hacienda: parsear XML firmado: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("hacienda: documento sin raíz")
	}

	sig := findChild(root, "Signature")
	if sig == nil {
		return fmt.Errorf("hacienda: el documento no contiene ds:Signature")
	}
	signedInfo := findChild(sig, "SignedInfo")
	if signedInfo == nil {
		return fmt.Errorf("hacienda: Signature sin SignedInfo")
	}

	// 1) Digest del documento: quitar la firma y canonicalizar el resto.
	docCopy := doc.Copy()
	rootCopy := docCopy.Root()
	if sigCopy := findChild(rootCopy, "Signature"); sigCopy != nil {
		rootCopy.RemoveChild(sigCopy)
	}
	withoutSig, err := docCopy.WriteToBytes()
	if err != nil {
		return fmt.Errorf("hacienda: serializar documento sin firma: %w", err)
	}
	canonicalDoc, err := canonicalize(withoutSig)
	if err != nil {
		return fmt.Errorf("hacienda: canonicalizar documento: %w", err)
	}
	docDigest := sha256.Sum256(canonicalDoc)

	// 2) Digest de SignedProperties (lleva sus propios xmlns).
	props := findDescendant(sig, "SignedProperties")
	if props == nil {
		return fmt.Errorf("hacienda: Signature sin SignedProperties")
	}
	propsBytes, err := serializeElement(props)
	if err != nil {
		return fmt.Errorf("hacienda: serializar SignedProperties: %w", err)
	}
	canonicalProps, err := canonicalize(propsBytes)
	if err != nil {
		return fmt.Errorf("hacienda: canonicalizar SignedProperties: %w", err)
	}
	propsDigest := sha256.Sum256(canonicalProps)

	// 3) Comparar contra los DigestValue declarados.
	refs := childElements(signedInfo, "Reference")
	if len(refs) != 2 {
		return fmt.Errorf("hacienda: se esperaban 2 Reference, hay %d", len(refs))
	}
	for _, ref := range refs {
		declared := elementText(findChild(ref, "DigestValue"))
		var computed string
		if ref.SelectAttrValue("URI", "") == "" {
			computed = base64.StdEncoding.EncodeToString(docDigest[:])
		} else {
			computed = base64.StdEncoding.EncodeToString(propsDigest[:])
		}
		if declared != computed {
			return fmt.Errorf("hacienda: digest de Reference %q no coincide", ref.SelectAttrValue("URI", ""))
		}
	}

	// 4) Verificar SignatureValue sobre SignedInfo canónico con la llave
	// pública del certificado embebido.
	certText := elementText(findDescendant(sig, "X509Certificate"))
	if certText == "" {
		return fmt.Errorf("hacienda: Signature sin X509Certificate")
	}
	certDER, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(certText), ""))
	if err != nil {
		return fmt.Errorf("hacienda: decodificar certificado embebido: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("hacienda: parsear certificado embebido: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("hacienda: el certificado embebido no es RSA")
	}

	siBytes, err := serializeElement(signedInfo)
	if err != nil {
		return fmt.Errorf("hacienda: serializar SignedInfo: %w", err)
	}
	canonicalSI, err := canonicalize(siBytes)
	if err != nil {
		return fmt.Errorf("hacienda: canonicalizar SignedInfo: %w", err)
	}
	siHash := sha256.Sum256(canonicalSI)

	sigValue := elementText(findChild(sig, "SignatureValue"))
	sigBytes, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(sigValue), ""))
	if err != nil {
		return fmt.Errorf("hacienda: decodificar SignatureValue: %w", err)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, siHash[:], sigBytes); err != nil {
		return fmt.Errorf("hacienda: SignatureValue inválido: %w", err)
	}
	return nil
}

// serializeElement serializa un elemento como documento independiente,
// declarando xmlns:ds si el subárbol no lo trae (SignedInfo no lo declara
// porque lo hereda de Signature).
func serializeElement(el *etree.Element) ([]byte, error) {
	copied := el.Copy()
	if copied.SelectAttr("xmlns:ds") == nil {
		copied.CreateAttr("xmlns:ds", NamespaceDS)
	}
	doc := etree.NewDocument()
	doc.SetRoot(copied)
	return doc.WriteToBytes()
}

// ── helpers de navegación (ignoran el prefijo de namespace) ──────────────────

func localTag(el *etree.Element) string {
	if i := strings.Index(el.Tag, ":"); i >= 0 {
		return el.Tag[i+1:]
	}
	return el.Tag
}

func findChild(el *etree.Element, local string) *etree.Element {
	for _, c := range el.ChildElements() {
		if localTag(c) == local {
			return c
		}
	}
	return nil
}

func childElements(el *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if localTag(c) == local {
			out = append(out, c)
		}
	}
	return out
}

func findDescendant(el *etree.Element, local string) *etree.Element {
	for _, c := range el.ChildElements() {
		if localTag(c) == local {
			return c
		}
		if found := findDescendant(c, local); found != nil {
			return found
		}
	}
	return nil
}

func elementText(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}
