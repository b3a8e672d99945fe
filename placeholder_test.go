package xltpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlaceholders(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Placeholder
	}{
		{
			name: "full normal",
			text: "${title}",
			want: []Placeholder{{Placeholder: "${title}", Type: TypeNormal, Name: "title", Full: true}},
		},
		{
			name: "dotted key",
			text: "${user.address.city}",
			want: []Placeholder{{Placeholder: "${user.address.city}", Type: TypeNormal, Name: "user", Key: "address.city", Full: true}},
		},
		{
			name: "table with subtype",
			text: "${table:items.photo:image}",
			want: []Placeholder{{Placeholder: "${table:items.photo:image}", Type: TypeTable, Name: "items", Key: "photo", SubType: "image", Full: true}},
		},
		{
			name: "custom type with image subtype",
			text: "${pic:logo:image}",
			want: []Placeholder{{Placeholder: "${pic:logo:image}", Type: "pic", Name: "logo", SubType: "image", Full: true}},
		},
		{
			name: "image type",
			text: "${image:logo}",
			want: []Placeholder{{Placeholder: "${image:logo}", Type: TypeImage, Name: "logo", Full: true}},
		},
		{
			name: "custom type prefix",
			text: "${logo:image}",
			want: []Placeholder{{Placeholder: "${logo:image}", Type: "logo", Name: "image", Full: true}},
		},
		{
			name: "surrounded by text",
			text: "Hello ${name}!",
			want: []Placeholder{{Placeholder: "${name}", Type: TypeNormal, Name: "name"}},
		},
		{
			name: "adjacent markers",
			text: "${a}${b}",
			want: []Placeholder{
				{Placeholder: "${a}", Type: TypeNormal, Name: "a"},
				{Placeholder: "${b}", Type: TypeNormal, Name: "b"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPlaceholders(tt.text))
		})
	}
}

func TestExtractPlaceholders_None(t *testing.T) {
	assert.Nil(t, ExtractPlaceholders("plain text"))
	assert.Nil(t, ExtractPlaceholders("${unterminated"))
	assert.Nil(t, ExtractPlaceholders("$100 {x}"))
}

func TestPlaceholder_PathAndImage(t *testing.T) {
	ps := ExtractPlaceholders("${table:people.name} ${image:logo} ${table:x.photo:image}")
	require.Len(t, ps, 3)
	assert.Equal(t, "people.name", ps[0].Path())
	assert.False(t, ps[0].IsImage())
	assert.Equal(t, "logo", ps[1].Path())
	assert.True(t, ps[1].IsImage())
	assert.True(t, ps[2].IsImage())
}

func TestReplacePlaceholders(t *testing.T) {
	text := "${a} + ${b} = ${c}"
	values := map[string]string{"a": "1", "b": "2"}
	got := replacePlaceholders(text, func(p Placeholder) (string, bool) {
		v, ok := values[p.Name]
		return v, ok
	})
	assert.Equal(t, "1 + 2 = ${c}", got)
}

func TestReplacePlaceholders_SinglePass(t *testing.T) {
	values := map[string]string{"a": "${b}", "b": "X"}
	got := replacePlaceholders("${a} ${b}", func(p Placeholder) (string, bool) {
		v, ok := values[p.Name]
		return v, ok
	})
	assert.Equal(t, "${b} X", got)
}
