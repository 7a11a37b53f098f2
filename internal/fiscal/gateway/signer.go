package gateway

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/gabrielmz/pdv-service/internal/fiscal"
	"golang.org/x/crypto/pkcs12"
)

// Signer wraps the serialized document in a signed envelope. The concrete
// XML-DSig profile lives behind this interface so the client never deals
// with key material directly.
type Signer interface {
	Sign(infNFe []byte) ([]byte, error)
}

// Credential is the merchant's A1 certificate pair loaded from a PFX file.
type Credential struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

// LoadCredential reads and decodes the PFX bundle. Any problem here — file
// unreadable, wrong password, non-RSA key, expired certificate — wraps
// fiscal.ErrCredential so callers can tell configuration faults from
// transport faults before a single byte goes to SEFAZ.
func LoadCredential(path, password string) (*Credential, error) {
	const fn = "fiscal.gateway.LoadCredential"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: can't read certificate file: %v", fn, fiscal.ErrCredential, err)
	}

	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: can't decode pfx: %v", fn, fiscal.ErrCredential, err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: %w: certificate key is not RSA", fn, fiscal.ErrCredential)
	}

	if time.Now().After(cert.NotAfter) {
		return nil, fmt.Errorf("%s: %w: certificate expired at %s", fn, fiscal.ErrCredential, cert.NotAfter)
	}

	return &Credential{cert: cert, key: rsaKey}, nil
}

type signatureXML struct {
	XMLName        xml.Name `xml:"Signature"`
	Xmlns          string   `xml:"xmlns,attr"`
	DigestMethod   string   `xml:"SignedInfo>Reference>DigestMethod"`
	DigestValue    string   `xml:"SignedInfo>Reference>DigestValue"`
	SignatureValue string   `xml:"SignatureValue"`
	X509Cert       string   `xml:"KeyInfo>X509Data>X509Certificate"`
}

// Sign computes an RSA-SHA256 enveloped signature over the serialized
// infNFe fragment and returns the complete NFe element.
func (c *Credential) Sign(infNFe []byte) ([]byte, error) {
	const fn = "fiscal.gateway.Sign"

	digest := sha256.Sum256(infNFe)

	sig, err := rsa.SignPKCS1v15(rand.Reader, c.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%s: can't sign document: %v", fn, err)
	}

	sigXML, err := xml.Marshal(signatureXML{
		Xmlns:          "http://www.w3.org/2000/09/xmldsig#",
		DigestMethod:   "http://www.w3.org/2001/04/xmlenc#sha256",
		DigestValue:    base64.StdEncoding.EncodeToString(digest[:]),
		SignatureValue: base64.StdEncoding.EncodeToString(sig),
		X509Cert:       base64.StdEncoding.EncodeToString(c.cert.Raw),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: can't marshal signature: %v", fn, err)
	}

	signed := make([]byte, 0, len(infNFe)+len(sigXML)+64)
	signed = append(signed, []byte(`<NFe xmlns="http://www.portalfiscal.inf.br/nfe">`)...)
	signed = append(signed, infNFe...)
	signed = append(signed, sigXML...)
	signed = append(signed, []byte(`</NFe>`)...)

	return signed, nil
}
