// Package i18n holds the localized reply catalog. Spanish is the platform
// default; English is available per business. These are the fixed service
// messages sent outside the LLM loop, so their wording stays stable.
package i18n

import "fmt"

// Locale identifies a supported reply language.
type Locale string

const (
	LocaleES Locale = "es"
	LocaleEN Locale = "en"
)

// DefaultLocale is used when a business has no locale configured.
const DefaultLocale = LocaleES

// MessageKey names a catalog entry.
type MessageKey string

const (
	MsgRedirectMultiBusiness MessageKey = "redirect_multi_business"
	MsgPermissionDenied      MessageKey = "permission_denied"
	MsgSessionExpired        MessageKey = "session_expired"
	MsgResumePrompt          MessageKey = "resume_prompt"
	MsgRateLimited           MessageKey = "rate_limited"
	MsgGenericError          MessageKey = "generic_error"
	MsgBookingConflict       MessageKey = "booking_conflict"
	MsgOwnerStaffOnboarded   MessageKey = "owner_staff_onboarded"
)

var catalog = map[Locale]map[MessageKey]string{
	LocaleES: {
		MsgRedirectMultiBusiness: "Trabajas con varios negocios en Turnero. Para gestionar uno, escribe directamente al número de WhatsApp de ese negocio.",
		MsgPermissionDenied:      "No tienes permisos para realizar esa acción. Contacta al dueño del negocio si crees que es un error.",
		MsgSessionExpired:        "Tu conversación anterior expiró por inactividad. Empecemos de nuevo.",
		MsgResumePrompt:          "Tenías una conversación pendiente: %s. ¿Quieres continuar donde quedaste?",
		MsgRateLimited:           "Estás enviando mensajes muy rápido. Espera un momento e inténtalo de nuevo.",
		MsgGenericError:          "Ocurrió un error procesando tu mensaje. Inténtalo de nuevo en unos minutos.",
		MsgBookingConflict:       "Ese horario acaba de ocuparse. Te muestro alternativas cercanas.",
		MsgOwnerStaffOnboarded:   "%s completó su registro en Turnero y ya puede recibir citas.",
	},
	LocaleEN: {
		MsgRedirectMultiBusiness: "You work with several businesses on Turnero. To manage one, message that business's WhatsApp number directly.",
		MsgPermissionDenied:      "You don't have permission for that action. Contact the business owner if you think this is a mistake.",
		MsgSessionExpired:        "Your previous conversation expired due to inactivity. Let's start over.",
		MsgResumePrompt:          "You had a pending conversation: %s. Want to pick up where you left off?",
		MsgRateLimited:           "You're sending messages too quickly. Please wait a moment and try again.",
		MsgGenericError:          "Something went wrong processing your message. Please try again in a few minutes.",
		MsgBookingConflict:       "That time was just taken. Here are nearby alternatives.",
		MsgOwnerStaffOnboarded:   "%s finished registering on Turnero and can now take appointments.",
	},
}

// T returns the catalog entry for the given locale and key, falling back to
// the default locale for unknown locales or missing entries.
func T(locale Locale, key MessageKey) string {
	if msgs, ok := catalog[locale]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	return catalog[DefaultLocale][key]
}

// Tf returns a formatted catalog entry.
func Tf(locale Locale, key MessageKey, args ...interface{}) string {
	return fmt.Sprintf(T(locale, key), args...)
}

// Normalize maps a stored locale string to a supported Locale.
func Normalize(s string) Locale {
	switch Locale(s) {
	case LocaleES, LocaleEN:
		return Locale(s)
	default:
		return DefaultLocale
	}
}
