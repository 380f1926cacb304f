// Constantes para firma XAdES-BES del comprobante electrónico v4.4.

package signer

// Namespaces y algoritmos XMLDSig / XAdES.
const (
	NamespaceDS    = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceXAdES = "http://uri.etsi.org/01903/v1.3.2#"

	AlgExcC14N   = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256    = "http://www.w3.org/2000/09/xmldsig#sha256"
	// SHA-1 solo para el digest del certificado en SigningCertificate; el
	// validador de Hacienda lo exige por compatibilidad.
	AlgSHA1 = "http://www.w3.org/2000/09/xmldsig#sha1"

	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"

	// Type del Reference que apunta a SignedProperties.
	TypeSignedProperties = "http://uri.etsi.org/01903#SignedProperties"
)
