package database

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSalaryUnmarshalForms(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Salary
	}{
		{"fixed", `5000`, FixedSalary(5000)},
		{"range", `[3000, 4500]`, SalaryBetween(3000, 4500)},
		{"negotiable", `"negotiable"`, NegotiableSalary()},
		{"negotiable any case", `" Negotiable "`, NegotiableSalary()},
		{"null", `null`, Salary{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got Salary
			require.NoError(t, json.Unmarshal([]byte(tc.in), &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSalaryRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{`"competitive"`, `[1]`, `[1,2,3]`, `{"min":1}`, `true`} {
		var s Salary
		assert.Error(t, json.Unmarshal([]byte(in), &s), in)
	}
}

func TestSalaryValidate(t *testing.T) {
	assert.NoError(t, FixedSalary(0).Validate())
	assert.NoError(t, SalaryBetween(10, 10).Validate())
	assert.NoError(t, NegotiableSalary().Validate())
	assert.Error(t, FixedSalary(-1).Validate())
	assert.Error(t, SalaryBetween(20, 10).Validate())
	assert.Error(t, SalaryBetween(-5, 10).Validate())
	assert.Error(t, Salary{}.Validate())
}

func TestSalaryScanFromStoredText(t *testing.T) {
	var s Salary
	require.NoError(t, s.Scan("[1000,2000]"))
	assert.Equal(t, SalaryBetween(1000, 2000), s)

	require.NoError(t, s.Scan([]byte(`"negotiable"`)))
	assert.Equal(t, SalaryNegotiable, s.Kind)

	require.NoError(t, s.Scan(int64(700)))
	assert.Equal(t, FixedSalary(700), s)

	require.NoError(t, s.Scan(nil))
	assert.True(t, s.IsZero())
}

func TestSalaryMarshalRoundTripShapes(t *testing.T) {
	data, err := json.Marshal(map[string]Salary{
		"a": FixedSalary(12.5),
		"b": SalaryBetween(1, 2),
		"c": NegotiableSalary(),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":12.5,"b":[1,2],"c":"negotiable"}`, string(data))
}
