package scancode

import (
	"encoding/json"
	"strings"
)

// Decoded is the best-effort interpretation of a scanned payload.
type Decoded struct {
	Code       string
	AreaIDHint string
}

// envelope is the structured form some site codes are printed with.
type envelope struct {
	Code string `json:"code"`
	Area string `json:"area"`
}

// Decode interprets a raw scanned payload. Payloads carrying a small JSON
// envelope yield its code and area fields; anything else, including malformed
// JSON, is treated as a literal code. Decode never fails.
func Decode(payload string) Decoded {
	trimmed := strings.TrimSpace(payload)

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err == nil {
		if env.Code != "" || env.Area != "" {
			return Decoded{Code: env.Code, AreaIDHint: env.Area}
		}
	}

	return Decoded{Code: trimmed}
}
