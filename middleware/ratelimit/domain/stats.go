package domain

import (
	"context"
	"strings"
	"time"
)

// StatsEvent é uma decisão de cota vista de fora: qual limiter, qual chave, qual resultado.
//
// Method/Path não assumem HTTP; qualquer adapter pode preencher.
// Key e Path têm cardinalidade aberta, então os stores só os gravam quando pedido.
type StatsEvent struct {
	Limiter string
	Key     Key
	Outcome Outcome

	Method string
	Path   string

	At time.Time
}

// Route junta método e path ("GET /x"). Vazio se nenhum dos dois foi informado.
func (ev StatsEvent) Route() string {
	return strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
}

// StatsStore grava eventos de decisão. Erro aqui nunca deve derrubar a request.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// StatsSummary são os contadores acumulados por outcome ("allowed", "blocked", "storage_error").
type StatsSummary struct {
	Total     map[string]int64
	ByLimiter map[string]map[string]int64
}

// StatsReader é implementado pelos stores que conseguem devolver o acumulado.
type StatsReader interface {
	Summary(ctx context.Context) (StatsSummary, error)
}
