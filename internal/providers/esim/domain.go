// Package esim talks to the upstream eSIM platform: token acquisition,
// order provisioning and package listing.
package esim

import "errors"

var (
	// ErrUpstreamAuth covers token endpoint failures and malformed
	// credential responses.
	ErrUpstreamAuth = errors.New("esim upstream authentication failed")
	// ErrProvisioning covers order endpoint failures.
	ErrProvisioning = errors.New("esim provisioning failed")
)

// ProvisionedSim is the result of a successful order.
type ProvisionedSim struct {
	ProviderOrderID string
	ICCID           string
	QRCodeURL       string
	AppleInstallURL string
	DataBalance     string
}

// Package describes a purchasable eSIM bundle.
type Package struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Region       string  `json:"region"`
	Data         string  `json:"data"`
	ValidityDays int     `json:"validity_days"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
}
