package kv

import (
	"time"

	"github.com/spf13/cast"
)

// Reply coerces an untyped lookup result to a concrete type on demand.
// Every accessor is a thin pass-through to spf13/cast, which returns the
// type's zero value rather than panicking when the underlying value can't
// be coerced — the right default for a metadata field that may simply be
// absent.
type Reply struct {
	v any
}

func (r *Reply) String() string          { return cast.ToString(r.v) }
func (r *Reply) Int() int                { return cast.ToInt(r.v) }
func (r *Reply) Int64() int64            { return cast.ToInt64(r.v) }
func (r *Reply) Float64() float64        { return cast.ToFloat64(r.v) }
func (r *Reply) Bool() bool              { return cast.ToBool(r.v) }
func (r *Reply) Time() time.Time         { return cast.ToTime(r.v) }
func (r *Reply) Duration() time.Duration { return cast.ToDuration(r.v) }
func (r *Reply) StringSlice() []string   { return cast.ToStringSlice(r.v) }
