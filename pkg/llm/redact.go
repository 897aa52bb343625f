package llm

// Redact shortens a credential to a loggable form: first four and last two
// characters with the middle elided. Short keys redact fully. Credentials
// must never reach logs or error strings unredacted.
func Redact(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-2:]
}
