package proxy

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrAttributeMissing is returned when a required attribute is unset.
	ErrAttributeMissing = errors.New("attribute missing")

	// ErrAttributeType is returned when an attribute holds another type.
	ErrAttributeType = errors.New("attribute type mismatch")
)

// AttributeError reports a failed attribute access. Key always names the
// attribute so the failing filter can be traced to the one that should
// have set it.
type AttributeError struct {
	Key  string
	Want string
	Got  string
	Err  error
}

func (e *AttributeError) Error() string {
	if errors.Is(e.Err, ErrAttributeType) {
		return fmt.Sprintf("attribute %q: want %s, got %s", e.Key, e.Want, e.Got)
	}
	return fmt.Sprintf("attribute %q: %v", e.Key, e.Err)
}

func (e *AttributeError) Unwrap() error {
	return e.Err
}

// Attribute returns the value stored under key.
func (c *Context) Attribute(key string) (any, bool) {
	c.attrMu.RLock()
	defer c.attrMu.RUnlock()
	v, ok := c.attrs[key]
	return v, ok
}

// SetAttribute stores value under key, replacing any previous value.
func (c *Context) SetAttribute(key string, value any) {
	c.attrMu.Lock()
	c.attrs[key] = value
	c.attrMu.Unlock()
}

// RequiredAttribute returns the value stored under key or an
// *AttributeError wrapping ErrAttributeMissing.
func (c *Context) RequiredAttribute(key string) (any, error) {
	v, ok := c.Attribute(key)
	if !ok {
		return nil, &AttributeError{Key: key, Err: ErrAttributeMissing}
	}
	return v, nil
}

// AttributeOrDefault returns the value stored under key, or def when unset.
func (c *Context) AttributeOrDefault(key string, def any) any {
	if v, ok := c.Attribute(key); ok {
		return v
	}
	return def
}

// AttributeAs returns the attribute under key as a T. It fails with
// ErrAttributeMissing when unset and ErrAttributeType when the stored
// value is not a T.
func AttributeAs[T any](c *Context, key string) (T, error) {
	var zero T
	v, err := c.RequiredAttribute(key)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, &AttributeError{
			Key:  key,
			Want: reflect.TypeFor[T]().String(),
			Got:  fmt.Sprintf("%T", v),
			Err:  ErrAttributeType,
		}
	}
	return t, nil
}

// AttributeAsOrDefault is AttributeAs that returns def on any failure.
func AttributeAsOrDefault[T any](c *Context, key string, def T) T {
	t, err := AttributeAs[T](c, key)
	if err != nil {
		return def
	}
	return t
}
