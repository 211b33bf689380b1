package infra

import (
	"context"

	"quota-gateway/middleware/ratelimit/domain"
)

// ChanPool é um SlotPool sobre um channel com buffer: cada vaga ocupada é um item no buffer.
type ChanPool struct {
	slots chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

// NewChanPool aceita até size chamadas simultâneas. size <= 0 vira 1.
func NewChanPool(size int) *ChanPool {
	return &ChanPool{slots: make(chan struct{}, max(size, 1))}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	if err := ctx.Err(); err != nil {
		return nil, false
	}
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, true
	case <-ctx.Done():
		return nil, false
	}
}

// InUse devolve quantas vagas estão ocupadas agora.
func (p *ChanPool) InUse() int { return len(p.slots) }

func (p *ChanPool) Size() int { return cap(p.slots) }
