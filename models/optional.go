package models

import "strconv"

// OptionalInt is an integer that may be unset. Unset is distinct from zero.
type OptionalInt struct {
	value int
	set   bool
}

// Some returns a set OptionalInt holding v.
func Some(v int) OptionalInt {
	return OptionalInt{value: v, set: true}
}

// None returns an unset OptionalInt.
func None() OptionalInt {
	return OptionalInt{}
}

func (o OptionalInt) Get() (int, bool) {
	return o.value, o.set
}

func (o OptionalInt) IsSet() bool {
	return o.set
}

// OrElse returns the value, or d when unset.
func (o OptionalInt) OrElse(d int) int {
	if !o.set {
		return d
	}
	return o.value
}

// String renders the value in decimal, or "-" when unset.
func (o OptionalInt) String() string {
	if !o.set {
		return "-"
	}
	return strconv.Itoa(o.value)
}

// MarshalText lets OptionalInt appear in JSON records.
func (o OptionalInt) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (o *OptionalInt) UnmarshalText(b []byte) error {
	if string(b) == "-" || len(b) == 0 {
		*o = None()
		return nil
	}
	v, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
