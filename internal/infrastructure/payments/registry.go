package payments

import (
	"fmt"
	"log"
	"os"
	"strings"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"
)

// Registry holds one adapter per provider, constructed once at process
// start. The orchestrator selects the adapter by the record's payment
// method; the webhook route selects it by path segment.
type Registry struct {
	gateways map[entities.GatewayProvider]interfaces.IPaymentGateway
}

var _ interfaces.IGatewayRegistry = (*Registry)(nil)

func NewRegistry(gateways ...interfaces.IPaymentGateway) *Registry {
	r := &Registry{gateways: make(map[entities.GatewayProvider]interfaces.IPaymentGateway, len(gateways))}
	for _, gw := range gateways {
		r.gateways[gw.Provider()] = gw
	}
	return r
}

func (r *Registry) ForMethod(method entities.PaymentMethod) (interfaces.IPaymentGateway, error) {
	provider := method.Provider()
	if provider == "" {
		return nil, fmt.Errorf("payment method %s has no gateway provider", method)
	}
	return r.ForProvider(provider)
}

func (r *Registry) ForProvider(provider entities.GatewayProvider) (interfaces.IPaymentGateway, error) {
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("no gateway configured for provider %s", provider)
	}
	return gw, nil
}

// NewRegistryFromEnv wires every provider whose credentials are present. In
// mock mode a deterministic in-process gateway stands in for all of them.
func NewRegistryFromEnv() *Registry {
	if IsGatewayMockEnabled() {
		log.Printf("[payment][gateway] mock mode enabled; all providers served by the mock gateway")
		return NewRegistry(
			NewMockGateway(entities.GatewayProviderRazorpay),
			NewMockGateway(entities.GatewayProviderStripe),
			NewMockGateway(entities.GatewayProviderMercadoPago),
		)
	}

	var gateways []interfaces.IPaymentGateway
	if rzp, err := NewRazorpayGateway(
		os.Getenv("RAZORPAY_KEY_ID"),
		os.Getenv("RAZORPAY_KEY_SECRET"),
		os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
	); err != nil {
		log.Printf("[payment][gateway] Razorpay not configured: %v", err)
	} else {
		gateways = append(gateways, rzp)
	}

	if str, err := NewStripeGateway(
		os.Getenv("STRIPE_SECRET_KEY"),
		os.Getenv("STRIPE_PUBLISHABLE_KEY"),
		os.Getenv("STRIPE_WEBHOOK_SECRET"),
	); err != nil {
		log.Printf("[payment][gateway] Stripe not configured: %v", err)
	} else {
		gateways = append(gateways, str)
	}

	if mp, err := NewMercadoPagoGateway(
		os.Getenv("MERCADOPAGO_ACCESS_TOKEN"),
		os.Getenv("MERCADOPAGO_WEBHOOK_SECRET"),
	); err != nil {
		log.Printf("[payment][gateway] Mercado Pago not configured: %v", err)
	} else {
		gateways = append(gateways, mp)
	}

	return NewRegistry(gateways...)
}

func IsGatewayMockEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("PAYMENT_GATEWAY_MOCK")))
	switch v {
	case "1", "true", "yes", "on", "mock":
		return true
	}
	return false
}
