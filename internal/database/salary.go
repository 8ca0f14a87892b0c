package database

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// 薪资的三种形态。
const (
	SalaryFixed      = "fixed"
	SalaryRange      = "range"
	SalaryNegotiable = "negotiable"
)

var errInvalidSalary = errors.New("salary must be a number, a [min, max] pair or \"negotiable\"")

// Salary 是固定数额、[min, max] 区间或 "negotiable" 三者之一。
// JSON 形态分别为数字、二元数组与字符串。
type Salary struct {
	Kind   string
	Amount float64
	Min    float64
	Max    float64
}

// FixedSalary 构造固定薪资。
func FixedSalary(amount float64) Salary { return Salary{Kind: SalaryFixed, Amount: amount} }

// SalaryBetween 构造区间薪资。
func SalaryBetween(min, max float64) Salary { return Salary{Kind: SalaryRange, Min: min, Max: max} }

// NegotiableSalary 构造面议薪资。
func NegotiableSalary() Salary { return Salary{Kind: SalaryNegotiable} }

// IsZero 表示未设置薪资。
func (s Salary) IsZero() bool { return s.Kind == "" }

// Validate 校验数值范围。
func (s Salary) Validate() error {
	switch s.Kind {
	case SalaryFixed:
		if s.Amount < 0 {
			return errors.New("salary must not be negative")
		}
	case SalaryRange:
		if s.Min < 0 || s.Max < 0 {
			return errors.New("salary range must not be negative")
		}
		if s.Min > s.Max {
			return errors.New("salary range min must not exceed max")
		}
	case SalaryNegotiable:
	default:
		return errInvalidSalary
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Salary) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case SalaryFixed:
		return json.Marshal(s.Amount)
	case SalaryRange:
		return json.Marshal([2]float64{s.Min, s.Max})
	case SalaryNegotiable:
		return json.Marshal(SalaryNegotiable)
	case "":
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unknown salary kind %q", s.Kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Salary) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = Salary{}
		return nil
	}

	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		if !strings.EqualFold(strings.TrimSpace(text), SalaryNegotiable) {
			return errInvalidSalary
		}
		*s = NegotiableSalary()
	case '[':
		var pair []float64
		if err := json.Unmarshal(data, &pair); err != nil {
			return errInvalidSalary
		}
		if len(pair) != 2 {
			return errInvalidSalary
		}
		*s = SalaryBetween(pair[0], pair[1])
	default:
		var amount float64
		if err := json.Unmarshal(data, &amount); err != nil {
			return errInvalidSalary
		}
		*s = FixedSalary(amount)
	}
	return nil
}

// Value 以 JSON 文本落库。
func (s Salary) Value() (driver.Value, error) {
	if s.IsZero() {
		return nil, nil
	}
	data, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *Salary) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = Salary{}
		return nil
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	case int64:
		*s = FixedSalary(float64(v))
		return nil
	case float64:
		*s = FixedSalary(v)
		return nil
	default:
		return fmt.Errorf("scan salary: unsupported type %T", value)
	}
}

// GormDataType 声明通用数据类型。
func (Salary) GormDataType() string { return "json" }

// GormDBDataType 在 PostgreSQL 上使用 jsonb，其它方言退化为文本。
func (Salary) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "JSON"
	default:
		return "TEXT"
	}
}

