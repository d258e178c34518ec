package provider

import (
	"bytes"
	"strconv"

	"github.com/shopspring/decimal"
)

// FlexInt decodes upstream integers that arrive either bare or quoted.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

// Count is an optional integer field; the panel sends counts as numbers,
// quoted numbers, or empty strings meaning "not yet known".
type Count struct {
	Set bool
	N   int
}

func (c *Count) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		c.Set = false
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		c.Set = false
		return nil
	}
	c.Set = true
	c.N = n
	return nil
}

// Service is one catalog entry as returned by the panel's services action.
type Service struct {
	Service  FlexInt         `json:"service"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Category string          `json:"category"`
	Rate     decimal.Decimal `json:"rate"`
	Min      FlexInt         `json:"min"`
	Max      FlexInt         `json:"max"`
	Refill   bool            `json:"refill"`
	Cancel   bool            `json:"cancel"`
}

// Balance is the panel's balance action response.
type Balance struct {
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// OrderStatus is the panel's status action response.
type OrderStatus struct {
	Status     string `json:"status"`
	Charge     string `json:"charge"`
	StartCount Count  `json:"start_count"`
	Remains    Count  `json:"remains"`
	Currency   string `json:"currency"`
}
