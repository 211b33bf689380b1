// Package application contém os casos de uso do rate limit: motor de consumo,
// registro de limiters, políticas compostas e operações administrativas.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Engine.Consume(ctx, key, cost) retorna uma Decision (allowed/blocked/storage_error).
package application
