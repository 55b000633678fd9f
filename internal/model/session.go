package model

// Session keys, kept identical to the web client's storage keys.
const (
	SessionKeyAccess     = "access"
	SessionKeyRefresh    = "refresh"
	SessionKeyIsLoggedIn = "isLoggedIn"
	SessionKeyLanguage   = "language"
	SessionKeyUserID     = "userId"
	SessionKeyPatientID  = "patientId"
	SessionKeyType       = "type"
)

var SessionKeys = []string{
	SessionKeyAccess,
	SessionKeyRefresh,
	SessionKeyIsLoggedIn,
	SessionKeyLanguage,
	SessionKeyUserID,
	SessionKeyPatientID,
	SessionKeyType,
}

func IsSessionKey(key string) bool {
	for _, k := range SessionKeys {
		if k == key {
			return true
		}
	}
	return false
}

const (
	LanguageArabic  = "ar"
	LanguageEnglish = "en"
)
