package actions

import "zapgate/internal/platform/repositories"

// Route binds an inbound path to its audit event type and handler.
type Route struct {
	Path      string
	EventType string
	Handler   Handler
}

func Routes(repo *repositories.RecordRepository) []Route {
	return []Route{
		{Path: "/eleitores/create", EventType: "eleitores.create", Handler: &CreateEleitor{repo: repo}},
		{Path: "/demandas/create", EventType: "demandas.create", Handler: &CreateDemanda{repo: repo}},
		{Path: "/ideias/create", EventType: "ideias.create", Handler: &CreateIdeia{repo: repo}},
		{Path: "/indicacoes/create", EventType: "indicacoes.create", Handler: &CreateIndicacao{repo: repo}},
		{Path: "/agenda/create", EventType: "agenda.create", Handler: &CreateEvento{repo: repo}},
		{Path: "/agenda/list", EventType: "agenda.list", Handler: &ListEventos{repo: repo}},
	}
}
