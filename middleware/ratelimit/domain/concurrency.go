package domain

import "context"

// SlotPool limita quantas chamadas ao Backend uma operação em lote (ex: reset de
// todos os limiters) faz ao mesmo tempo.
//
// Acquire espera por uma vaga até o ctx terminar. Com ok == true, release deve
// ser chamado uma única vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
