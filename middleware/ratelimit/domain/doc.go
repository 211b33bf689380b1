// Package domain reúne os tipos de cota: Profile, Record, Decision e os contratos
// Backend, Clock, Metrics e StatsStore.
//
// Nada aqui conhece HTTP, Redis ou o mapa em memória; os backends ficam em infra
// e a orquestração em application.
package domain
