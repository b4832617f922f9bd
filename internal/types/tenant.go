package types

// TenantConfig identifies a tenant and carries its static credentials.
type TenantConfig struct {
	ID              string `json:"id" yaml:"id"`
	DisplayName     string `json:"displayName" yaml:"display_name"`
	APIKey          string `json:"apiKey" yaml:"api_key"`
	SubscriptionKey string `json:"subscriptionKey" yaml:"subscription_key"`
	WorkerID        int    `json:"workerId" yaml:"worker_id"`
}
