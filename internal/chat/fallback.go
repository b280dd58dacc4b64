package chat

import (
	"fmt"
	"strings"
)

const notAvailable = "not available"

const (
	emergencyFallback = "If this is a medical or safety emergency, please call your local emergency number right away. For anything urgent with us, contact our team directly and we will help as quickly as we can."
	pricingFallback   = "Pricing depends on what you need, so our team gives exact quotes during a consultation. Would you like to set one up?"
	servicesFallback  = "Our team can walk you through everything we offer and help you pick what fits. Would you like someone to follow up with you?"
	defaultFallback   = Deflection + " Could you tell me a bit more about what you need, or would you like to book a time with our team?"
)

// FallbackReply returns a canned reply for when neither retrieval nor the
// model can produce one. info is the bot's loose contact record; missing or
// non-string values print as "not available".
func FallbackReply(intent string, info map[string]any) string {
	switch Intent(strings.ToLower(strings.TrimSpace(intent))) {
	case IntentEmergency:
		return emergencyFallback
	case IntentPricing:
		return pricingFallback
	case "services":
		return servicesFallback
	case IntentHours:
		return fmt.Sprintf("You can reach us here:\nEmail: %s\nPhone: %s\nAddress: %s",
			infoString(info, "email"), infoString(info, "phone"), infoString(info, "address"))
	default:
		return defaultFallback
	}
}

func infoString(info map[string]any, key string) string {
	if info == nil {
		return notAvailable
	}
	s, ok := info[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return strings.TrimSpace(s)
}
