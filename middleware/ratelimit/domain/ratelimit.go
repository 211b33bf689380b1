package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// Profile é a regra de uma política: capacidade por janela fixa e duração do bloqueio.
//
// Uma vez registrado, o Profile é imutável. Trocar a regra exige um novo nome de limiter.
type Profile struct {
	Capacity int64
	Window   time.Duration
	// Block é quanto tempo a chave fica bloqueada após estourar a capacidade.
	// Se 0, assume Window.
	Block time.Duration
	// ShortBlock permite Block < Window (por padrão é erro de configuração).
	ShortBlock bool
}

// Normalize devolve uma cópia com Block preenchido.
func (p Profile) Normalize() Profile {
	if p.Block == 0 {
		p.Block = p.Window
	}
	return p
}

func (p Profile) Validate() error {
	switch {
	case p.Capacity < 1:
		return &ConfigError{Field: "capacity", Reason: "must be >= 1"}
	case p.Window <= 0:
		return &ConfigError{Field: "window", Reason: "must be > 0"}
	case p.Block < 0:
		return &ConfigError{Field: "block", Reason: "must be >= 0"}
	case p.Block > 0 && p.Block < p.Window && !p.ShortBlock:
		return &ConfigError{Field: "block", Reason: "must be >= window unless short blocks are enabled"}
	}
	return nil
}

// Record é o estado de uma chave dentro de um limiter, mantido pelo Backend.
type Record struct {
	Consumed        int64
	WindowExpiresAt time.Time
	BlockedUntil    time.Time
}

func (r Record) Blocked(now time.Time) bool { return r.BlockedUntil.After(now) }

// Expired indica que o próximo consumo começa uma janela nova: a janela venceu ou
// um bloqueio já terminou. Sair do bloqueio devolve a capacidade inteira mesmo
// quando o bloqueio é mais curto que a janela.
func (r Record) Expired(now time.Time) bool {
	if !r.WindowExpiresAt.After(now) {
		return true
	}
	return !r.BlockedUntil.IsZero() && !r.BlockedUntil.After(now)
}

// Remaining calcula a capacidade restante em `now` sem alterar o registro.
func (r Record) Remaining(capacity int64, now time.Time) int64 {
	if r.Blocked(now) {
		return 0
	}
	if r.Expired(now) {
		return capacity
	}
	if left := capacity - r.Consumed; left > 0 {
		return left
	}
	return 0
}

// Consumption é a resposta bruta do Backend para um consumo.
type Consumption struct {
	Allowed bool
	Record  Record
}

// Backend é o armazenamento atômico dos contadores.
//
// Consume precisa ser atômico por (limiter, key): N consumos concorrentes de custo 1
// contra capacidade C resultam em exatamente min(N, C) aceitos.
// Erros retornados significam falha de infraestrutura, nunca cota esgotada.
type Backend interface {
	Consume(ctx context.Context, limiter string, key Key, cost int64, p Profile, now time.Time) (Consumption, error)
	Peek(ctx context.Context, limiter string, key Key) (Record, bool, error)
	Reset(ctx context.Context, limiter string, key Key) error
}

type Outcome int

const (
	OutcomeAllowed Outcome = iota
	OutcomeBlocked
	OutcomeStorageError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeStorageError:
		return "storage_error"
	}
	return "unknown"
}

// BlockType identifica qual janela bloqueou numa política progressiva.
type BlockType string

const (
	BlockShortTerm BlockType = "short_term"
	BlockLongTerm  BlockType = "long_term"
)

type Decision struct {
	Outcome Outcome
	Limiter string

	Limit     int64
	Remaining int64
	ResetAt   time.Time

	// RetryAfter é o tempo até o fim do bloqueio. Só vale quando Outcome == OutcomeBlocked.
	RetryAfter time.Duration
	BlockType  BlockType

	// Err é a causa quando Outcome == OutcomeStorageError.
	Err error
}

func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllowed }
func (d Decision) Blocked() bool { return d.Outcome == OutcomeBlocked }

// Proceed informa se o chamador segue adiante. Falha de storage é fail-open.
func (d Decision) Proceed() bool { return d.Outcome != OutcomeBlocked }
