package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/afrix/afxledger/internal/domain"
)

func TestPaymentMethod_RuleTable(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string // "" = valid
	}{
		{"mpesa personal ok", `{"method_type":"mpesa_personal","full_name":"Jane","phone_number":"0712345678"}`, ""},
		{"mpesa personal +254", `{"method_type":"mpesa_personal","full_name":"Jane","phone_number":"+254712345678"}`, ""},
		{"mpesa personal spaced", `{"method_type":"mpesa_personal","full_name":"Jane","phone_number":"0712 345 678"}`, ""},
		{"mpesa personal bad phone", `{"method_type":"mpesa_personal","full_name":"Jane","phone_number":"0812345678"}`, "phone_number"},
		{"mpesa personal no name", `{"method_type":"mpesa_personal","phone_number":"0712345678"}`, "full_name"},
		{"paybill ok", `{"method_type":"mpesa_paybill","paybill_number":"247247","account_number":"12345"}`, ""},
		{"paybill short account", `{"method_type":"mpesa_paybill","paybill_number":"247247","account_number":"1234"}`, "account_number"},
		{"bank ok", `{"method_type":"bank_transfer","bank_name":"KCB","account_number":"12345678901234567890"}`, ""},
		{"bank long account", `{"method_type":"bank_transfer","bank_name":"KCB","account_number":"123456789012345678901"}`, "account_number"},
		{"bank no name", `{"method_type":"bank_transfer","account_number":"123456"}`, "bank_name"},
		{"airtel ok", `{"method_type":"airtel_money","airtel_money_number":"0733000111"}`, ""},
		{"airtel bad", `{"method_type":"airtel_money","airtel_money_number":"12345"}`, "airtel_money_number"},
		{"unknown", `{"method_type":"paypal"}`, "method_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m domain.PaymentMethod
			if err := json.Unmarshal([]byte(tt.raw), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			err := m.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestPaymentMethods_ScanKeepsVariant(t *testing.T) {
	in := domain.PaymentMethods{{
		Type:    domain.MethodMpesaPaybill,
		Details: &domain.MpesaPaybill{PaybillNumber: "247247", AccountNumber: "998877"},
	}}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out domain.PaymentMethods
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	pb, ok := out[0].Details.(*domain.MpesaPaybill)
	if !ok {
		t.Fatalf("details type = %T, want *MpesaPaybill", out[0].Details)
	}
	if pb.AccountNumber != "998877" {
		t.Errorf("account number = %q", pb.AccountNumber)
	}
}

func TestPaymentMethods_RejectsDuplicates(t *testing.T) {
	m := domain.PaymentMethod{
		Type:    domain.MethodAirtelMoney,
		Details: &domain.AirtelMoney{Phone: "0733000111"},
	}
	err := domain.PaymentMethods{m, m}.Validate()
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("duplicate methods should fail validation, got %v", err)
	}
}
