package middlewares

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies son los rangos cuyo X-Forwarded-For se respeta.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies acepta IPs sueltas o CIDRs.
func ParseTrustedProxies(list []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func (t TrustedProxies) trusts(a netip.Addr) bool {
	a = a.Unmap()
	for _, p := range t {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ClientIP usa RemoteAddr. Solo si el peer es un proxy confiable recorre
// X-Forwarded-For de derecha a izquierda y retorna el primer hop no confiable.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	remote := remoteHost(r)
	peer, err := netip.ParseAddr(remote)
	if err != nil || len(t) == 0 || !t.trusts(peer) {
		return remote
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	client := remote
	for i := len(hops) - 1; i >= 0; i-- {
		h := strings.TrimSpace(hops[i])
		if h == "" {
			continue
		}
		a, err := netip.ParseAddr(h)
		if err != nil {
			// hop ilegible: no se puede seguir confiando hacia la izquierda
			return client
		}
		client = a.Unmap().String()
		if !t.trusts(a) {
			return client
		}
	}
	return client
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// clientIP sin proxies confiables: siempre el peer.
func clientIP(r *http.Request) string { return remoteHost(r) }
