package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	errBadJSON          = errors.New("bad json")
	errMissingAddFields = errors.New("usuarioId and productoId required")
	errMissingUser      = errors.New("usuarioId required")
	errQuantityRequired = errors.New("cantidad required")
	errBadQuantity      = errors.New("bad cantidad")
)

// looseNumber accepts a JSON number or a string holding one. Clients send
// product ids and quantities both ways.
type looseNumber struct {
	raw string
	set bool
	str bool
}

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = looseNumber{}
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		*n = looseNumber{raw: s, set: s != "", str: true}
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*n = looseNumber{raw: num.String(), set: true}
	return nil
}

// zero reports a value a client would treat as "not given": absent, null,
// empty string or the number 0. The string "0" counts as given.
func (n looseNumber) zero() bool {
	if !n.set {
		return true
	}
	if n.str {
		return false
	}
	f, err := strconv.ParseFloat(n.raw, 64)
	return err == nil && f == 0
}

// toInt returns the value when it is an integer within ±MaxQuantity.
func (n looseNumber) toInt() (int, bool) {
	f, err := strconv.ParseFloat(n.raw, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > MaxQuantity {
		return 0, false
	}
	return int(f), true
}

// userRef is a caller-supplied user id. Numbers are kept as their decimal text
// so that 7 and "7" name the same cart.
type userRef string

func (u *userRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*u = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = userRef(s)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*u = userRef(num.String())
	return nil
}

type addReq struct {
	UserID    userRef     `json:"usuarioId"`
	ProductID looseNumber `json:"productoId"`
	Quantity  looseNumber `json:"cantidad"`
}

// productID coerces the requested id. ok is false for ids that cannot name a
// catalog product.
func (r addReq) productID() (int, bool) {
	id, ok := r.ProductID.toInt()
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// quantity defaults to 1 when not given.
func (r addReq) quantity() (int, error) {
	if r.Quantity.zero() {
		return 1, nil
	}
	q, ok := r.Quantity.toInt()
	if !ok || q < 1 {
		return 0, errBadQuantity
	}
	return q, nil
}

type updateReq struct {
	UserID   userRef     `json:"usuarioId"`
	Quantity looseNumber `json:"cantidad"`
}

func (r updateReq) quantity() (int, error) {
	if !r.Quantity.set {
		return 0, errQuantityRequired
	}
	q, ok := r.Quantity.toInt()
	if !ok {
		return 0, errBadQuantity
	}
	return q, nil
}

type deleteReq struct {
	UserID userRef `json:"usuarioId"`
}
