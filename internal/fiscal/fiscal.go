// Package fiscal holds the domain model of an NFC-e emission: the document
// built from a sale, the outcome taxonomy of one emission attempt and the
// sentinel errors every layer above maps its failures onto. Nothing in this
// package touches the network or the filesystem.
package fiscal

import "errors"

// Sentinel errors of the emission taxonomy. Call sites classify with
// errors.Is; no raw gateway or builder error crosses the package boundary
// without being wrapped in one of these.
var (
	// ErrValidation marks a malformed sale or document. Local, never retried.
	ErrValidation = errors.New("invalid sale data")

	// ErrCredential marks an unreadable certificate or a wrong password.
	// Fatal until an operator fixes the configuration.
	ErrCredential = errors.New("invalid signing credential")

	// ErrGateway marks a transport failure talking to SEFAZ: network error,
	// timeout or a malformed response. Transient, safe to retry.
	ErrGateway = errors.New("fiscal gateway unavailable")
)

// ModeloNFCe is the fiscal document model code of a consumer invoice.
const ModeloNFCe = 65

// Ambiente selects the SEFAZ endpoint set. Production and homologation are
// different services and must never be conflated.
type Ambiente int

const (
	AmbienteProducao    Ambiente = 1
	AmbienteHomologacao Ambiente = 2
)

// Status is the terminal state of one emission attempt.
type Status int

const (
	StatusAuthorized Status = iota + 1
	StatusRejected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAuthorized:
		return "autorizada"
	case StatusRejected:
		return "rejeitada"
	default:
		return "erro"
	}
}

// Outcome is the tagged result of one emission attempt. Exactly one of the
// three shapes is populated, selected by Status:
//
//   - StatusAuthorized: Protocolo and XML carry the SEFAZ protocol number and
//     the signed document bytes for archival;
//   - StatusRejected: CodigoRejeicao and Motivo carry the regulator's verdict
//     verbatim, a deterministic business decision that must not be retried;
//   - StatusFailed: Err carries the technical cause, classified by the
//     sentinel errors above.
type Outcome struct {
	Status Status

	Protocolo string
	XML       []byte

	CodigoRejeicao string
	Motivo         string

	Err error
}

// Authorized builds the outcome of a cStat 100 response.
func Authorized(protocolo string, xml []byte) Outcome {
	return Outcome{Status: StatusAuthorized, Protocolo: protocolo, XML: xml}
}

// Rejected builds the outcome of any non-100 regulator status.
func Rejected(codigo, motivo string) Outcome {
	return Outcome{Status: StatusRejected, CodigoRejeicao: codigo, Motivo: motivo}
}

// Failed builds the outcome of a technical failure.
func Failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}
