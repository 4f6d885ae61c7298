package topics

import "github.com/hyperjump/clausewise/internal/models"

// Signal keys reported by the default agents.
const (
	IndemnityCapPresent        models.SignalKey = "indemnity_cap_present"
	LiabilityCapPresent        models.SignalKey = "liability_cap_present"
	TerminationForConvenience  models.SignalKey = "termination_for_convenience"
	ConsequentialDamagesWaiver models.SignalKey = "consequential_damages_waiver"
	GoverningLawMatch          models.SignalKey = "governing_law_match"
	ContractType               models.SignalKey = "contract_type"
	ContractLegality           models.SignalKey = "contract_legality"

	PaymentTermsDays          models.SignalKey = "payment_terms_days"
	LatePaymentPenaltyPresent models.SignalKey = "late_payment_penalty_present"
	AutoRenewal               models.SignalKey = "auto_renewal"
	PriceIncreaseCapPresent   models.SignalKey = "price_increase_cap_present"

	GDPRAddressed      models.SignalKey = "gdpr_addressed"
	AuditRightsPresent models.SignalKey = "audit_rights_present"

	SLAUptime                models.SignalKey = "sla_uptime"
	MaintenanceWindowDefined models.SignalKey = "maintenance_window_defined"

	EncryptionAtRest     models.SignalKey = "encryption_at_rest"
	EncryptionInTransit  models.SignalKey = "encryption_in_transit"
	DisasterRecoveryPlan models.SignalKey = "disaster_recovery_plan"
	MultiFactorAuth      models.SignalKey = "multi_factor_auth"
)

// Contract legality categories.
const (
	LegalityValid       = "legally_valid"
	LegalityNotContract = "not_a_contract"
)

const systemPrompt = "You are a {topic} contract analysis agent. Respond ONLY with valid JSON."

const responseFooter = `
Use true or false for booleans, a plain number for numeric values, and null when the
clauses do not say.

Clauses provided:
{clauses}
`

// DefaultSpecs returns the five built-in topic specs in canonical order.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			Topic: models.TopicLegal,
			QueryPhrasings: []string{
				"indemnity and limitation of liability",
				"termination of the agreement for convenience or cause",
				"governing law, jurisdiction and warranties",
			},
			SystemPrompt: systemPrompt,
			PromptTemplate: `You are a Legal Agent. Review the contract clauses for risk mitigation and enforceability.

Output JSON MUST include these exact keys:
{{
    "agent": "Legal",
    "analysis": "Text summary...",
    "features": {{
        "indemnity_cap_present": boolean,
        "liability_cap_present": boolean,
        "termination_for_convenience": boolean,
        "consequential_damages_waiver": boolean,
        "governing_law_match": boolean,
        "contract_type": "Master Services Agreement, NDA, ...",
        "contract_legality": "legally_valid" or "not_a_contract"
    }},
    "extracted_clauses": {{
        "indemnity": "text snippet...",
        "liability": "text snippet...",
        "termination": "text snippet..."
    }}
}}
` + responseFooter,
			Signals: []SignalSpec{
				{Key: IndemnityCapPresent, Kind: models.SignalBool},
				{Key: LiabilityCapPresent, Kind: models.SignalBool},
				{Key: TerminationForConvenience, Kind: models.SignalBool},
				{Key: ConsequentialDamagesWaiver, Kind: models.SignalBool},
				{Key: GoverningLawMatch, Kind: models.SignalBool},
				{Key: ContractType, Kind: models.SignalCategory},
				{Key: ContractLegality, Kind: models.SignalCategory, Enum: []string{LegalityValid, LegalityNotContract}},
			},
		},
		{
			Topic: models.TopicFinance,
			QueryPhrasings: []string{
				"payment terms, invoicing and fees",
				"pricing and price increases on renewal",
				"late payment penalties and interest",
			},
			SystemPrompt: systemPrompt,
			PromptTemplate: `You are a Finance Agent. Review the contract clauses for financial obligations.

Output JSON MUST include these exact keys:
{{
    "agent": "Finance",
    "analysis": "Text summary...",
    "features": {{
        "payment_terms_days": number,
        "late_payment_penalty_present": boolean,
        "auto_renewal": boolean,
        "price_increase_cap_present": boolean
    }},
    "extracted_clauses": {{
        "payment_terms": "text snippet...",
        "pricing": "text snippet..."
    }}
}}
` + responseFooter,
			Signals: []SignalSpec{
				{Key: PaymentTermsDays, Kind: models.SignalNumber},
				{Key: LatePaymentPenaltyPresent, Kind: models.SignalBool},
				{Key: AutoRenewal, Kind: models.SignalBool},
				{Key: PriceIncreaseCapPresent, Kind: models.SignalBool},
			},
		},
		{
			Topic: models.TopicCompliance,
			QueryPhrasings: []string{
				"data protection, GDPR and privacy",
				"audit rights and inspection of records",
				"regulatory compliance obligations",
			},
			SystemPrompt: systemPrompt,
			PromptTemplate: `You are a Compliance Agent. Review the contract clauses for data protection and regulatory obligations.

Output JSON MUST include these exact keys:
{{
    "agent": "Compliance",
    "analysis": "Text summary...",
    "features": {{
        "gdpr_addressed": boolean,
        "audit_rights_present": boolean
    }},
    "extracted_clauses": {{
        "data_protection": "text snippet...",
        "audit": "text snippet..."
    }}
}}
` + responseFooter,
			Signals: []SignalSpec{
				{Key: GDPRAddressed, Kind: models.SignalBool},
				{Key: AuditRightsPresent, Kind: models.SignalBool},
			},
		},
		{
			Topic: models.TopicOperations,
			QueryPhrasings: []string{
				"service level agreement and uptime commitment",
				"support hours and response times",
				"scheduled maintenance windows",
			},
			SystemPrompt: systemPrompt,
			PromptTemplate: `You are an Operations Agent. Review the contract clauses for SLA and support commitments.

Output JSON MUST include these exact keys:
{{
    "agent": "Operations",
    "analysis": "Text summary...",
    "features": {{
        "sla_uptime": number (e.g. 99.9),
        "maintenance_window_defined": boolean
    }},
    "extracted_clauses": {{
        "sla": "text snippet...",
        "support": "text snippet..."
    }}
}}
` + responseFooter,
			Signals: []SignalSpec{
				{Key: SLAUptime, Kind: models.SignalNumber},
				{Key: MaintenanceWindowDefined, Kind: models.SignalBool},
			},
		},
		{
			Topic: models.TopicSecurity,
			QueryPhrasings: []string{
				"security measures and encryption of data",
				"disaster recovery and backups",
				"access control and authentication",
			},
			SystemPrompt: systemPrompt,
			PromptTemplate: `You are a Security Agent. Review the contract clauses for IT security, disaster recovery, and data protection measures.

Output JSON MUST include these exact keys:
{{
    "agent": "Security",
    "analysis": "Text summary...",
    "features": {{
        "encryption_at_rest": boolean,
        "encryption_in_transit": boolean,
        "disaster_recovery_plan": boolean,
        "multi_factor_auth": boolean
    }},
    "extracted_clauses": {{
        "security_measures": "text snippet...",
        "disaster_recovery": "text snippet..."
    }}
}}
` + responseFooter,
			Signals: []SignalSpec{
				{Key: EncryptionAtRest, Kind: models.SignalBool},
				{Key: EncryptionInTransit, Kind: models.SignalBool},
				{Key: DisasterRecoveryPlan, Kind: models.SignalBool},
				{Key: MultiFactorAuth, Kind: models.SignalBool},
			},
		},
	}
}

// Default returns the built-in registry. It panics only if the built-in table is invalid.
func Default() *Registry {
	r, err := NewRegistry(DefaultSpecs())
	if err != nil {
		panic("topics: invalid default registry: " + err.Error())
	}
	return r
}
