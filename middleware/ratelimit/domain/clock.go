package domain

import "time"

// Clock é a fonte de tempo de toda a matemática de janela.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
