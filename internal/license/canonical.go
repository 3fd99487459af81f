package license

// canonicalSeparator joins the signed fields. It is not escaped inside
// field values.
const canonicalSeparator = "|"

// CanonicalMessage builds the byte string a license signature covers:
// email|license_key|expires|issuer.
func CanonicalMessage(email, licenseKey, expires, issuer string) string {
	return email + canonicalSeparator + licenseKey + canonicalSeparator + expires + canonicalSeparator + issuer
}
