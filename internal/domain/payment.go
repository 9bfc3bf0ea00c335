package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Payment method variants
// ──────────────────────────────────────────────────────────────────────────────

// PaymentMethodType tags a payment method variant.
type PaymentMethodType string

const (
	MethodMpesaPersonal PaymentMethodType = "mpesa_personal"
	MethodMpesaPaybill  PaymentMethodType = "mpesa_paybill"
	MethodBankTransfer  PaymentMethodType = "bank_transfer"
	MethodAirtelMoney   PaymentMethodType = "airtel_money"
)

// PaymentDetails is implemented by every variant. The rule table for each
// variant is its validate struct tags.
type PaymentDetails interface {
	MethodType() PaymentMethodType
	normalize()
}

// MpesaPersonal is a personal M-Pesa line.
type MpesaPersonal struct {
	FullName string `json:"full_name"    validate:"required,max=100"`
	Phone    string `json:"phone_number" validate:"required,ke_phone"`
}

func (*MpesaPersonal) MethodType() PaymentMethodType { return MethodMpesaPersonal }
func (d *MpesaPersonal) normalize() {
	d.FullName = strings.TrimSpace(d.FullName)
	d.Phone = stripSpaces(d.Phone)
}

// MpesaPaybill is a business paybill plus the account to credit.
type MpesaPaybill struct {
	PaybillNumber string `json:"paybill_number" validate:"required,numeric,max=10"`
	AccountNumber string `json:"account_number" validate:"required,account_number"`
}

func (*MpesaPaybill) MethodType() PaymentMethodType { return MethodMpesaPaybill }
func (d *MpesaPaybill) normalize() {
	d.PaybillNumber = stripSpaces(d.PaybillNumber)
	d.AccountNumber = stripSpaces(d.AccountNumber)
}

// BankTransfer is a plain bank account.
type BankTransfer struct {
	BankName      string `json:"bank_name"      validate:"required,max=100"`
	AccountNumber string `json:"account_number" validate:"required,account_number"`
}

func (*BankTransfer) MethodType() PaymentMethodType { return MethodBankTransfer }
func (d *BankTransfer) normalize() {
	d.BankName = strings.TrimSpace(d.BankName)
	d.AccountNumber = stripSpaces(d.AccountNumber)
}

// AirtelMoney is an Airtel Money line.
type AirtelMoney struct {
	Phone string `json:"airtel_money_number" validate:"required,ke_phone"`
}

func (*AirtelMoney) MethodType() PaymentMethodType { return MethodAirtelMoney }
func (d *AirtelMoney) normalize() {
	d.Phone = stripSpaces(d.Phone)
}

// newDetails returns an empty variant for t, or nil if t is unknown.
func newDetails(t PaymentMethodType) PaymentDetails {
	switch t {
	case MethodMpesaPersonal:
		return &MpesaPersonal{}
	case MethodMpesaPaybill:
		return &MpesaPaybill{}
	case MethodBankTransfer:
		return &BankTransfer{}
	case MethodAirtelMoney:
		return &AirtelMoney{}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// PaymentMethod (tagged union)
// ──────────────────────────────────────────────────────────────────────────────

// PaymentMethod is serialised flat: {"method_type": "...", <variant fields>}.
type PaymentMethod struct {
	Type    PaymentMethodType
	Details PaymentDetails
}

// MarshalJSON flattens the variant fields next to method_type.
func (m PaymentMethod) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if m.Details != nil {
		raw, err := json.Marshal(m.Details)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	fields["method_type"] = m.Type
	return json.Marshal(fields)
}

// UnmarshalJSON picks the variant by method_type. Unknown types decode with
// nil Details and are rejected by Validate.
func (m *PaymentMethod) UnmarshalJSON(b []byte) error {
	var head struct {
		Type PaymentMethodType `json:"method_type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	m.Type = head.Type
	m.Details = newDetails(head.Type)
	if m.Details == nil {
		return nil
	}
	if err := json.Unmarshal(b, m.Details); err != nil {
		return err
	}
	m.Details.normalize()
	return nil
}

// Validate applies the variant's rule table.
func (m PaymentMethod) Validate() error {
	if m.Details == nil {
		return NewValidationError("method_type", "oneof", "unsupported payment method %q", m.Type)
	}
	err := validate.Struct(m.Details)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("payment method: %w", err)
	}
	fe := fieldErrs[0]
	return &ValidationError{Field: fe.Field(), Rule: fe.Tag(), Message: ruleMessage(fe)}
}

// PaymentMethods is stored as a JSON array column.
type PaymentMethods []PaymentMethod

// Value implements driver.Valuer.
func (p PaymentMethods) Value() (driver.Value, error) {
	if p == nil {
		p = PaymentMethods{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *PaymentMethods) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	}
	return fmt.Errorf("payment methods: cannot scan %T", src)
}

// Validate checks every method and rejects duplicates of the same type.
func (p PaymentMethods) Validate() error {
	seen := make(map[PaymentMethodType]bool, len(p))
	for _, m := range p {
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[m.Type] {
			return NewValidationError("payment_methods", "unique", "%s listed twice", m.Type)
		}
		seen[m.Type] = true
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Payment confirmation
// ──────────────────────────────────────────────────────────────────────────────

// PaymentConfirmation is recorded by the settlement collaborator once fiat
// has been received for a sell offer. A trade consumes it exactly once.
type PaymentConfirmation struct {
	Reference   string          `json:"reference"    db:"reference"`
	OfferID     uuid.UUID       `json:"offer_id"     db:"offer_id"`
	PayerID     uuid.UUID       `json:"payer_id"     db:"payer_id"`
	Amount      decimal.Decimal `json:"amount"       db:"amount"`
	ConfirmedBy uuid.UUID       `json:"confirmed_by" db:"confirmed_by"`
	ConfirmedAt time.Time       `json:"confirmed_at" db:"confirmed_at"`
	TradeID     *uuid.UUID      `json:"trade_id"     db:"trade_id"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Validator
// ──────────────────────────────────────────────────────────────────────────────

var (
	kePhoneRe       = regexp.MustCompile(`^(\+254|0)7\d{8}$`)
	accountNumberRe = regexp.MustCompile(`^\d{5,20}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Use JSON tag names in error fields.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("ke_phone", func(fl validator.FieldLevel) bool {
		return kePhoneRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("account_number", func(fl validator.FieldLevel) bool {
		return accountNumberRe.MatchString(fl.Field().String())
	})
	return v
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "ke_phone":
		return "invalid phone number, use 07xxxxxxxx or +2547xxxxxxxx"
	case "account_number":
		return "account number must be 5-20 digits"
	case "numeric":
		return "must contain digits only"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "failed on " + fe.Tag()
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
