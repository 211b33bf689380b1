package application

import (
	"net/netip"
	"strings"

	"quota-gateway/middleware/ratelimit/domain"
)

// Identity é o que o chamador sabe sobre quem fez a requisição.
type Identity struct {
	UserID string
	IP     string
}

// KeyFunc permite ao chamador definir a chave a partir da identidade.
type KeyFunc func(Identity) string

// ResolveKey deriva a chave do cliente. Ordem: fn (se devolver algo), usuário, IP.
// Se scope não for vazio a chave fica "scope_identidade".
func ResolveKey(id Identity, scope string, fn KeyFunc) domain.Key {
	key := ""
	if fn != nil {
		key = strings.TrimSpace(fn(id))
	}
	if key == "" {
		key = identityKey(id)
	}
	if scope = strings.TrimSpace(scope); scope != "" {
		key = scope + "_" + key
	}
	return domain.Key(key)
}

func identityKey(id Identity) string {
	if u := strings.TrimSpace(id.UserID); u != "" {
		return "user:" + u
	}
	if ip := NormalizeIP(id.IP); ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}

// NormalizeIP devolve a forma canônica do IP (IPv4 mapeado em IPv6 vira IPv4,
// zona e porta são descartadas). Entrada inválida volta apenas aparada.
func NormalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap().WithZone("").String()
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return addr.Unmap().WithZone("").String()
	}
	return raw
}
