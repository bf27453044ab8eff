package constants

// Public route constants
const (
	HealthRoute          = "/healthz"
	StripeWebhookRoute   = "/webhooks/stripe"
	ProviderWebhookRoute = "/webhooks/provider"
	MetricsRoute         = "/metrics"
)

// API routes, relative to APIPrefix
const (
	APIPrefix             = "/api"
	SessionRoute          = "/session"
	PaymentMethodsRoute   = "/payment-methods"
	ResolvePaymentMethod  = "/resolve"
	AdminPrefix           = "/admin"
	AdminWebhookStatsPath = "/webhooks/stats"
)
