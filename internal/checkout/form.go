package checkout

import (
	"errors"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	return v
}

type billingRules struct {
	FirstName string `form:"billing_detail_first_name" validate:"required,max=100"`
	LastName  string `form:"billing_detail_last_name" validate:"required,max=100"`
	Street    string `form:"billing_detail_street" validate:"required,max=100"`
	City      string `form:"billing_detail_city" validate:"required,max=100"`
	State     string `form:"billing_detail_state" validate:"required,max=100"`
	Postcode  string `form:"billing_detail_postcode" validate:"required,max=10"`
	Country   string `form:"billing_detail_country" validate:"required,max=100"`
	Phone     string `form:"billing_detail_phone" validate:"required,max=20"`
	Email     string `form:"billing_detail_email" validate:"required,email"`
}

type shippingRules struct {
	FirstName string `form:"shipping_detail_first_name" validate:"required,max=100"`
	LastName  string `form:"shipping_detail_last_name" validate:"required,max=100"`
	Street    string `form:"shipping_detail_street" validate:"required,max=100"`
	City      string `form:"shipping_detail_city" validate:"required,max=100"`
	State     string `form:"shipping_detail_state" validate:"required,max=100"`
	Postcode  string `form:"shipping_detail_postcode" validate:"required,max=10"`
	Country   string `form:"shipping_detail_country" validate:"required,max=100"`
}

type cardRules struct {
	Name        string `form:"card_name" validate:"required,max=100"`
	Type        string `form:"card_type" validate:"required,oneof=Visa Mastercard Discover Amex"`
	Number      string `form:"card_number" validate:"required,credit_card"`
	ExpiryMonth int    `form:"card_expiry_month" validate:"required,min=1,max=12"`
	ExpiryYear  int    `form:"card_expiry_year" validate:"required,gte=2000"`
	CCV         string `form:"card_ccv" validate:"required,numeric,min=3,max=4"`
}

// Form is one step of the order form: the collected order data, the card
// fields for this request only and whatever went wrong.
type Form struct {
	Step           int               `json:"step"`
	Data           shop.OrderData    `json:"data"`
	Card           shop.CardDetails  `json:"-"`
	Errors         map[string]string `json:"errors,omitempty"`
	CheckoutErrors []string          `json:"checkout_errors,omitempty"`
	bound          bool
}

// NewForm is an unbound form showing initial.
func NewForm(step int, initial shop.OrderData) *Form {
	return &Form{Step: step, Data: initial}
}

// BindForm layers posted values over initial and validates the fields the
// step collects. Fields absent from values keep their initial value, so
// later steps need not repost everything.
func BindForm(steps Steps, step int, initial shop.OrderData, values url.Values, needsShipping bool, now time.Time) *Form {
	f := &Form{Step: step, Data: initial, bound: true}
	d := &f.Data

	d.Billing = bindAddress(values, "billing_detail_", d.Billing)
	d.Shipping = bindAddress(values, "shipping_detail_", d.Shipping)
	d.AdditionalInstructions = get(values, "additional_instructions", d.AdditionalInstructions)
	d.DiscountCode = strings.TrimSpace(get(values, "discount_code", d.DiscountCode))
	// unchecked boxes are only meaningful on the step that shows them
	if step == steps.First() || values.Has("same_billing_shipping") {
		d.SameBillingShipping = checked(values, "same_billing_shipping")
	}
	if step == steps.Last() || values.Has("remember") {
		d.Remember = checked(values, "remember")
	}

	if steps.CollectsCard(step) {
		f.Card = shop.CardDetails{
			Name:        values.Get("card_name"),
			Type:        values.Get("card_type"),
			Number:      strings.ReplaceAll(strings.ReplaceAll(values.Get("card_number"), " ", ""), "-", ""),
			ExpiryMonth: atoi(values.Get("card_expiry_month")),
			ExpiryYear:  atoi(values.Get("card_expiry_year")),
			CCV:         values.Get("card_ccv"),
		}
	}

	f.Errors = f.validate(steps, needsShipping, now)
	return f
}

func (f *Form) IsValid() bool {
	return f.bound && len(f.Errors) == 0 && len(f.CheckoutErrors) == 0
}

func (f *Form) AddError(field, msg string) {
	if f.Errors == nil {
		f.Errors = map[string]string{}
	}
	f.Errors[field] = msg
}

// withCheckoutErrors rebinds the form with errors raised while processing
// it, which makes it invalid.
func (f *Form) withCheckoutErrors(errs []*CheckoutError) *Form {
	f.CheckoutErrors = messages(errs)
	return f
}

// Err returns the form's field errors as a ValidationError, or nil.
func (f *Form) Err() error {
	if len(f.Errors) == 0 {
		return nil
	}
	return &ValidationError{Fields: f.Errors}
}

func (f *Form) validate(steps Steps, needsShipping bool, now time.Time) map[string]string {
	out := map[string]string{}
	b := f.Data.Billing
	collect(out, validate.Struct(billingRules{
		FirstName: b.FirstName, LastName: b.LastName, Street: b.Street, City: b.City, State: b.State,
		Postcode: b.Postcode, Country: b.Country, Phone: b.Phone, Email: b.Email,
	}))
	if needsShipping && !f.Data.SameBillingShipping {
		s := f.Data.Shipping
		collect(out, validate.Struct(shippingRules{
			FirstName: s.FirstName, LastName: s.LastName, Street: s.Street, City: s.City, State: s.State,
			Postcode: s.Postcode, Country: s.Country,
		}))
	}
	if steps.CollectsCard(f.Step) {
		c := f.Card
		collect(out, validate.Struct(cardRules{
			Name: c.Name, Type: c.Type, Number: c.Number, ExpiryMonth: c.ExpiryMonth, ExpiryYear: c.ExpiryYear, CCV: c.CCV,
		}))
		if _, bad := out["card_expiry_month"]; !bad && c.ExpiryYear > 0 && cardExpired(c, now) {
			out["card_expiry_month"] = "A valid expiry date is required."
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func collect(out map[string]string, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return
	}
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "credit_card":
		return "Invalid credit card number."
	case "oneof":
		return "Select a valid choice."
	case "numeric":
		return "Enter a number."
	case "max":
		return "Ensure this value has at most " + fe.Param() + " characters."
	}
	return "Enter a valid value."
}

// cardExpired treats a card as valid through the last day of its month.
func cardExpired(c shop.CardDetails, now time.Time) bool {
	y, m, _ := now.Date()
	return c.ExpiryYear < y || (c.ExpiryYear == y && c.ExpiryMonth < int(m))
}

func bindAddress(values url.Values, prefix string, a shop.Address) shop.Address {
	a.FirstName = get(values, prefix+"first_name", a.FirstName)
	a.LastName = get(values, prefix+"last_name", a.LastName)
	a.Business = get(values, prefix+"business", a.Business)
	a.Street = get(values, prefix+"street", a.Street)
	a.City = get(values, prefix+"city", a.City)
	a.State = get(values, prefix+"state", a.State)
	a.Postcode = get(values, prefix+"postcode", a.Postcode)
	a.Country = get(values, prefix+"country", a.Country)
	a.Phone = get(values, prefix+"phone", a.Phone)
	a.Email = get(values, prefix+"email", a.Email)
	return a
}

func get(values url.Values, key, fallback string) string {
	if !values.Has(key) {
		return fallback
	}
	return strings.TrimSpace(values.Get(key))
}

func checked(values url.Values, key string) bool {
	switch strings.ToLower(values.Get(key)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
