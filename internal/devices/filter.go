package devices

import (
	"fmt"
	"strings"
	"time"
)

// Column is a filterable device attribute.
type Column string

const (
	ColUserID             Column = "user_id"
	ColPushToken          Column = "push_token"
	ColPlatform           Column = "platform"
	ColIsActive           Column = "is_active"
	ColLastActiveAt       Column = "last_active_at"
	ColLastReminderSentAt Column = "last_reminder_sent_at"
	ColMutedUntil         Column = "muted_until"
)

// Op is a comparison operator.
type Op string

const (
	OpEq      Op = "="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpIn      Op = "IN"
	OpIsNull  Op = "IS NULL"
	OpNotNull Op = "IS NOT NULL"
)

// Cond is a single predicate.
type Cond struct {
	Column Column
	Op     Op
	Value  any
}

// Filter is a conjunction of conditions. The zero value matches everything.
type Filter []Cond

func Eq(c Column, v any) Cond { return Cond{Column: c, Op: OpEq, Value: v} }
func Lt(c Column, v any) Cond { return Cond{Column: c, Op: OpLt, Value: v} }
func Lte(c Column, v any) Cond { return Cond{Column: c, Op: OpLte, Value: v} }
func Gt(c Column, v any) Cond { return Cond{Column: c, Op: OpGt, Value: v} }
func Gte(c Column, v any) Cond { return Cond{Column: c, Op: OpGte, Value: v} }
func IsNull(c Column) Cond { return Cond{Column: c, Op: OpIsNull} }
func NotNull(c Column) Cond { return Cond{Column: c, Op: OpNotNull} }
func In(c Column, v ...string) Cond { return Cond{Column: c, Op: OpIn, Value: v} }

// And returns a new filter with conds appended.
func (f Filter) And(conds ...Cond) Filter {
	out := make(Filter, 0, len(f)+len(conds))
	out = append(out, f...)
	return append(out, conds...)
}

// Validate rejects unknown columns and operator/value mismatches before a
// filter reaches the store.
func (f Filter) Validate() error {
	for _, c := range f {
		kind, ok := columnKinds[c.Column]
		if !ok {
			return fmt.Errorf("unknown column %q", c.Column)
		}
		switch c.Op {
		case OpIsNull, OpNotNull:
			if kind != kindTime {
				return fmt.Errorf("%s %s: column is not nullable", c.Column, c.Op)
			}
		case OpIn:
			if _, ok := c.Value.([]string); !ok || kind != kindString {
				return fmt.Errorf("%s IN: want []string on a text column", c.Column)
			}
		case OpEq:
			if !valueMatchesKind(c.Value, kind) {
				return fmt.Errorf("%s =: value %T does not match column", c.Column, c.Value)
			}
		case OpLt, OpLte, OpGt, OpGte:
			if kind != kindTime {
				return fmt.Errorf("%s %s: ordering only supported on timestamps", c.Column, c.Op)
			}
			if _, ok := c.Value.(time.Time); !ok {
				return fmt.Errorf("%s %s: want time.Time, got %T", c.Column, c.Op, c.Value)
			}
		default:
			return fmt.Errorf("unknown operator %q", c.Op)
		}
	}
	return nil
}

// SQL renders the filter as a WHERE clause body against table alias d,
// numbering placeholders from argStart. An empty filter renders "TRUE".
func (f Filter) SQL(argStart int) (string, []any) {
	if len(f) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, 0, len(f))
	args := make([]any, 0, len(f))
	n := argStart
	for _, c := range f {
		col := "d." + string(c.Column)
		switch c.Op {
		case OpIsNull, OpNotNull:
			parts = append(parts, col+" "+string(c.Op))
		case OpIn:
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", col, n))
			args = append(args, c.Value)
			n++
		default:
			parts = append(parts, fmt.Sprintf("%s %s $%d", col, c.Op, n))
			args = append(args, c.Value)
			n++
		}
	}
	return strings.Join(parts, " AND "), args
}

// Match evaluates the filter in-process with SQL semantics: comparisons
// against a NULL timestamp are false.
func (f Filter) Match(d Device) bool {
	for _, c := range f {
		if !c.match(d) {
			return false
		}
	}
	return true
}

func (c Cond) match(d Device) bool {
	switch columnKinds[c.Column] {
	case kindString:
		v := d.stringField(c.Column)
		switch c.Op {
		case OpEq:
			s, ok := c.Value.(string)
			return ok && v == s
		case OpIn:
			vals, _ := c.Value.([]string)
			for _, s := range vals {
				if s == v {
					return true
				}
			}
		}
		return false
	case kindBool:
		b, ok := c.Value.(bool)
		return ok && c.Op == OpEq && d.IsActive == b
	case kindTime:
		v := d.timeField(c.Column)
		switch c.Op {
		case OpIsNull:
			return v == nil
		case OpNotNull:
			return v != nil
		}
		t, ok := c.Value.(time.Time)
		if !ok || v == nil {
			return false
		}
		switch c.Op {
		case OpEq:
			return v.Equal(t)
		case OpLt:
			return v.Before(t)
		case OpLte:
			return !v.After(t)
		case OpGt:
			return v.After(t)
		case OpGte:
			return !v.Before(t)
		}
	}
	return false
}

type colKind int

const (
	kindString colKind = iota
	kindBool
	kindTime
)

var columnKinds = map[Column]colKind{
	ColUserID:             kindString,
	ColPushToken:          kindString,
	ColPlatform:           kindString,
	ColIsActive:           kindBool,
	ColLastActiveAt:       kindTime,
	ColLastReminderSentAt: kindTime,
	ColMutedUntil:         kindTime,
}

func valueMatchesKind(v any, k colKind) bool {
	switch k {
	case kindString:
		_, ok := v.(string)
		return ok
	case kindBool:
		_, ok := v.(bool)
		return ok
	case kindTime:
		_, ok := v.(time.Time)
		return ok
	}
	return false
}

func (d Device) stringField(c Column) string {
	switch c {
	case ColUserID:
		return d.UserID
	case ColPushToken:
		return d.PushToken
	case ColPlatform:
		return d.Platform
	}
	return ""
}

func (d Device) timeField(c Column) *time.Time {
	switch c {
	case ColLastActiveAt:
		return d.LastActiveAt
	case ColLastReminderSentAt:
		return d.LastReminderSentAt
	case ColMutedUntil:
		return d.MutedUntil
	}
	return nil
}
