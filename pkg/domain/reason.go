package domain

// ReasonCode classifies why a circuit breaker forced an escalation.
// Codes are stable identifiers written to the audit log, so they never
// carry free text or PHI.
type ReasonCode string

const (
	ReasonLowConfidence      ReasonCode = "LOW_CONFIDENCE"
	ReasonIdentityUnverified ReasonCode = "IDENTITY_UNVERIFIED"
	ReasonDrugInteraction    ReasonCode = "DRUG_INTERACTION"
	ReasonAllergyMatch       ReasonCode = "ALLERGY_MATCH"
	ReasonControlled         ReasonCode = "CONTROLLED_SUBSTANCE"
	ReasonBackendUnavailable ReasonCode = "BACKEND_UNAVAILABLE"
	ReasonMaxRetries         ReasonCode = "MAX_RETRIES"
	ReasonDrugUnrecognized   ReasonCode = "DRUG_UNRECOGNIZED"
	ReasonDoseOutOfRange     ReasonCode = "DOSE_OUT_OF_RANGE"

	// ReasonPriorAuth routes PA_APPROVAL_NEEDED handoffs. It is not a
	// breaker trigger: prior authorization is a nominal workflow path.
	ReasonPriorAuth ReasonCode = "PRIOR_AUTH_REQUIRED"
)
