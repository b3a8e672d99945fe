package xltpl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValueOf_Kinds(t *testing.T) {
	name := "ptr"
	var nilPtr *string
	type row struct{ Name string }

	tests := []struct {
		in   any
		want Kind
	}{
		{nil, KindMissing},
		{nilPtr, KindMissing},
		{"text", KindString},
		{&name, KindString},
		{42, KindNumber},
		{uint8(7), KindNumber},
		{3.5, KindNumber},
		{true, KindBool},
		{time.Now(), KindDate},
		{[]byte{1, 2}, KindBytes},
		{[]string{"a"}, KindSequence},
		{[2]int{1, 2}, KindSequence},
		{map[string]any{"a": 1}, KindMapping},
		{row{Name: "x"}, KindMapping},
		{func() {}, KindMissing},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValueOf(tt.in).Kind(), "%T", tt.in)
	}
}

func TestValue_Stringify(t *testing.T) {
	assert.Equal(t, "42", ValueOf(42).Stringify())
	assert.Equal(t, "-7", ValueOf(int64(-7)).Stringify())
	assert.Equal(t, "3.25", ValueOf(3.25).Stringify())
	assert.Equal(t, "0.1", ValueOf(float32(0.1)).Stringify())
	assert.Equal(t, "1", ValueOf(true).Stringify())
	assert.Equal(t, "0", ValueOf(false).Stringify())
	assert.Equal(t, "abc", ValueOf("abc").Stringify())
	assert.Equal(t, "", ValueOf(nil).Stringify())
	assert.Equal(t, "", ValueOf([]int{1}).Stringify())
	assert.Equal(t, "41275", ValueOf(time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)).Stringify())
}

func TestDateSerial(t *testing.T) {
	assert.Equal(t, 25569.0, DateSerial(time.Unix(0, 0)))
	assert.Equal(t, 41275.5, DateSerial(time.Date(2013, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestValue_Sequence(t *testing.T) {
	v := ValueOf([]any{"a", 2, nil})
	assert.Equal(t, 3, v.Len())
	items := v.Items()
	assert.Equal(t, KindString, items[0].Kind())
	assert.Equal(t, KindNumber, items[1].Kind())
	assert.Equal(t, KindMissing, items[2].Kind())
	assert.Equal(t, KindMissing, v.Index(5).Kind())
	assert.Equal(t, 0, ValueOf("x").Len())
}

func TestValue_IsEmpty(t *testing.T) {
	assert.True(t, ValueOf(nil).IsEmpty())
	assert.True(t, ValueOf("").IsEmpty())
	assert.False(t, ValueOf(0).IsEmpty())
	assert.False(t, ValueOf("x").IsEmpty())
}

