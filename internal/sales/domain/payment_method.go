package domain

// PaymentMethodCard is the only method that routes through the external
// hosted-payment flow; everything else creates the sale directly.
const PaymentMethodCard = "tarjeta"

type PaymentMethod struct {
	Code              string `json:"code"`
	Label             string `json:"label"`
	Icon              string `json:"icon"`
	RequiresReference bool   `json:"requires_reference"`
}

var paymentMethods = []PaymentMethod{
	{Code: "efectivo", Label: "Efectivo", Icon: "cash"},
	{Code: PaymentMethodCard, Label: "Tarjeta", Icon: "credit-card"},
	{Code: "yape", Label: "Yape", Icon: "qr-code", RequiresReference: true},
	{Code: "plin", Label: "Plin", Icon: "qr-code", RequiresReference: true},
	{Code: "transferencia", Label: "Transferencia", Icon: "bank", RequiresReference: true},
}

func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(paymentMethods))
	copy(out, paymentMethods)
	return out
}

func IsKnownPaymentMethod(code string) bool {
	for _, m := range paymentMethods {
		if m.Code == code {
			return true
		}
	}
	return false
}
