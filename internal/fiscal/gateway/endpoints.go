package gateway

import (
	"fmt"

	"github.com/gabrielmz/pdv-service/internal/fiscal"
)

// codigoUF maps a state abbreviation to its IBGE code, stamped into the
// document as cUF.
var codigoUF = map[string]string{
	"AC": "12", "AL": "27", "AM": "13", "AP": "16", "BA": "29",
	"CE": "23", "DF": "53", "ES": "32", "GO": "52", "MA": "21",
	"MG": "31", "MS": "50", "MT": "51", "PA": "15", "PB": "25",
	"PE": "26", "PI": "22", "PR": "41", "RJ": "33", "RN": "24",
	"RO": "11", "RR": "14", "RS": "43", "SC": "42", "SE": "28",
	"SP": "35", "TO": "17",
}

// States that run their own NFC-e authorizer. Everyone else goes through
// SVRS, the shared SEFAZ Virtual do Rio Grande do Sul.
var autorizadores = map[string]map[fiscal.Ambiente]string{
	"SP": {
		fiscal.AmbienteProducao:    "https://nfce.fazenda.sp.gov.br/ws/NFeAutorizacao4.asmx",
		fiscal.AmbienteHomologacao: "https://homologacao.nfce.fazenda.sp.gov.br/ws/NFeAutorizacao4.asmx",
	},
	"MG": {
		fiscal.AmbienteProducao:    "https://nfce.fazenda.mg.gov.br/nfce/services/NFeAutorizacao4",
		fiscal.AmbienteHomologacao: "https://hnfce.fazenda.mg.gov.br/nfce/services/NFeAutorizacao4",
	},
	"PR": {
		fiscal.AmbienteProducao:    "https://nfce.fazenda.pr.gov.br/nfce/NFeAutorizacao4",
		fiscal.AmbienteHomologacao: "https://homologacao.nfce.fazenda.pr.gov.br/nfce/NFeAutorizacao4",
	},
	"MT": {
		fiscal.AmbienteProducao:    "https://nfce.sefaz.mt.gov.br/nfcews/v2/services/NfeAutorizacao4",
		fiscal.AmbienteHomologacao: "https://homologacao.nfce.sefaz.mt.gov.br/nfcews/v2/services/NfeAutorizacao4",
	},
	"MS": {
		fiscal.AmbienteProducao:    "https://nfce.sefaz.ms.gov.br/ws/NFeAutorizacao4",
		fiscal.AmbienteHomologacao: "https://hom.nfce.sefaz.ms.gov.br/ws/NFeAutorizacao4",
	},
	"AM": {
		fiscal.AmbienteProducao:    "https://nfce.sefaz.am.gov.br/nfce-services/services/NfeAutorizacao4",
		fiscal.AmbienteHomologacao: "https://homnfce.sefaz.am.gov.br/nfce-services/services/NfeAutorizacao4",
	},
	"GO": {
		fiscal.AmbienteProducao:    "https://nfe.sefaz.go.gov.br/nfe/services/NFeAutorizacao4",
		fiscal.AmbienteHomologacao: "https://homolog.sefaz.go.gov.br/nfe/services/NFeAutorizacao4",
	},
}

var svrs = map[fiscal.Ambiente]string{
	fiscal.AmbienteProducao:    "https://nfce.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
	fiscal.AmbienteHomologacao: "https://nfce-homologacao.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
}

// Endpoint resolves the authorizer URL for a state and environment. Unknown
// states are a configuration error, not something to discover at submit time.
func Endpoint(uf string, ambiente fiscal.Ambiente) (string, error) {
	if _, ok := codigoUF[uf]; !ok {
		return "", fmt.Errorf("unknown UF %q", uf)
	}

	if ambiente != fiscal.AmbienteProducao && ambiente != fiscal.AmbienteHomologacao {
		return "", fmt.Errorf("invalid ambiente %d", ambiente)
	}

	if urls, ok := autorizadores[uf]; ok {
		return urls[ambiente], nil
	}

	return svrs[ambiente], nil
}
