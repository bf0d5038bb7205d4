package mpesa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedCallback is returned when a callback body is not a JSON object.
var ErrMalformedCallback = errors.New("malformed callback payload")

// CallbackShape tells which of the two accepted payload layouts was seen.
type CallbackShape string

const (
	// ShapeNested is Daraja's own {"Body":{"stkCallback":{...}}} envelope.
	ShapeNested CallbackShape = "nested"
	// ShapeFlat is a single-level object used for manual and test submissions.
	ShapeFlat CallbackShape = "flat"
)

// CallbackResult is the normalized content of either payload shape.
type CallbackResult struct {
	Shape             CallbackShape
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        string
	ResultDesc        string
	ReceiptNumber     string
	TransactionDate   string
	Amount            string
	Phone             string
}

// Succeeded reports whether Daraja reported a completed payment. Only an
// explicit result code of 0 counts.
func (r *CallbackResult) Succeeded() bool {
	return r.ResultCode == "0"
}

// flexString decodes a JSON string, number, or bool into its text form.
// Daraja sends amounts and dates as numbers while manual payloads often
// quote them.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	case '{', '[':
		return fmt.Errorf("expected scalar, got %s", data[:1])
	}

	if bytes.Equal(data, []byte("true")) || bytes.Equal(data, []byte("false")) {
		*f = flexString(data)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(normalizeNumber(n))
	return nil
}

// normalizeNumber renders integral floats like 1.00 or 2.0191219e13 as plain
// digits so amounts and dates compare equal across payload shapes.
func normalizeNumber(n json.Number) string {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		return s
	}
	f, err := n.Float64()
	if err != nil {
		return s
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type metadataItem struct {
	Name  string     `json:"Name"`
	Value flexString `json:"Value"`
}

type stkCallback struct {
	MerchantRequestID flexString `json:"MerchantRequestID"`
	CheckoutRequestID flexString `json:"CheckoutRequestID"`
	ResultCode        flexString `json:"ResultCode"`
	ResultDesc        flexString `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []metadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type nestedEnvelope struct {
	Body struct {
		STKCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback decodes a callback body in either shape. The nested envelope
// is chosen when a Body.stkCallback object is present; anything else that is
// a JSON object is read as the flat shape. Missing fields are left empty.
func ParseCallback(raw []byte) (*CallbackResult, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, errOrNull(err))
	}

	if _, ok := lookupKey(top, "body"); ok {
		var env nestedEnvelope
		if err := json.Unmarshal(raw, &env); err == nil && env.Body.STKCallback != nil {
			return fromNested(env.Body.STKCallback), nil
		}
	}
	return fromFlat(top), nil
}

func errOrNull(err error) error {
	if err != nil {
		return err
	}
	return errors.New("payload is null")
}

func fromNested(cb *stkCallback) *CallbackResult {
	res := &CallbackResult{
		Shape:             ShapeNested,
		MerchantRequestID: string(cb.MerchantRequestID),
		CheckoutRequestID: string(cb.CheckoutRequestID),
		ResultCode:        string(cb.ResultCode),
		ResultDesc:        string(cb.ResultDesc),
	}
	for _, item := range cb.CallbackMetadata.Item {
		v := string(item.Value)
		switch normalizeKey(item.Name) {
		case "amount":
			res.Amount = v
		case "mpesareceiptnumber", "receiptnumber":
			res.ReceiptNumber = v
		case "transactiondate":
			res.TransactionDate = v
		case "phonenumber", "phone":
			res.Phone = v
		}
	}
	return res
}

func fromFlat(top map[string]json.RawMessage) *CallbackResult {
	get := func(keys ...string) string {
		for _, key := range keys {
			raw, ok := lookupKey(top, key)
			if !ok {
				continue
			}
			var v flexString
			if err := json.Unmarshal(raw, &v); err == nil && v != "" {
				return string(v)
			}
		}
		return ""
	}

	return &CallbackResult{
		Shape:             ShapeFlat,
		MerchantRequestID: get("merchantrequestid"),
		CheckoutRequestID: get("checkoutrequestid"),
		ResultCode:        get("resultcode"),
		ResultDesc:        get("resultdesc"),
		ReceiptNumber:     get("mpesareceiptnumber", "receiptnumber"),
		TransactionDate:   get("transactiondate"),
		Amount:            get("amount"),
		Phone:             get("phonenumber", "phone"),
	}
}

// lookupKey finds a key ignoring case and underscores, so CheckoutRequestID,
// checkout_request_id and checkoutRequestId all match.
func lookupKey(m map[string]json.RawMessage, normalized string) (json.RawMessage, bool) {
	for k, v := range m {
		if normalizeKey(k) == normalized {
			return v, true
		}
	}
	return nil, false
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(k, "_", ""))
}

// Registration pre-registers an initiated transaction on a reconciliation
// service. Both snake_case and Daraja's PascalCase field names decode.
type Registration struct {
	MerchantRequestID string `json:"merchant_request_id" validate:"omitempty,max=64"`
	CheckoutRequestID string `json:"checkout_request_id" validate:"required,max=64"`
	Phone             string `json:"phone"               validate:"required"`
	Amount            string `json:"amount"`
}

// UnmarshalJSON accepts snake_case and PascalCase keys and numeric amounts.
func (r *Registration) UnmarshalJSON(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}
	if top == nil {
		return errors.New("registration payload is null")
	}

	fields := []struct {
		dst  *string
		keys []string
	}{
		{&r.MerchantRequestID, []string{"merchantrequestid"}},
		{&r.CheckoutRequestID, []string{"checkoutrequestid"}},
		{&r.Phone, []string{"phone", "phonenumber"}},
		{&r.Amount, []string{"amount"}},
	}
	for _, f := range fields {
		for _, key := range f.keys {
			raw, ok := lookupKey(top, key)
			if !ok {
				continue
			}
			var v flexString
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("field %s: %w", key, err)
			}
			if v != "" {
				*f.dst = string(v)
				break
			}
		}
	}
	return nil
}

// registrationBody is the wire form posted to a remote register-init
// endpoint, in the PascalCase the Daraja responses use.
type registrationBody struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	PhoneNumber       string `json:"PhoneNumber"`
	Amount            string `json:"Amount"`
}
