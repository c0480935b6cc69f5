// redact предоставляет утилиты безопасного редактирования чувствительных
// данных для логов и событий аудита (e-mail, токены, адреса).
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// Email маскирует e-mail для логирования.
//
// Правила:
//   - строка должна содержать ровно один '@', иначе возвращается "***";
//   - локальная часть заменяется на первые две руны + "***" (или "***", если рун ≤ 2);
//   - домен возвращается без изменений.
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Fingerprint возвращает короткий необратимый отпечаток секрета (первые 12 hex
// символов sha256). Позволяет сопоставлять записи логов об одном и том же
// токене, не раскрывая его.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:6])
}

// IP обнуляет хвост адреса: последний октет для IPv4, последние 80 бит для IPv6.
// Нераспознанные значения возвращаются как "***".
func IP(addr string) string {
	ip := net.ParseIP(addr)
	if ip == nil {
		return "***"
	}

	if v4 := ip.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String()
	}

	masked := ip.Mask(net.CIDRMask(48, 128))
	return masked.String()
}
