package service

import (
	"strings"
	"testing"
	"time"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttributes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.Attributes
	}{
		{
			name: "json embedded in prose",
			raw:  `Sure! {"clothing_type":"shirt","color":"blue"}`,
			want: domain.Attributes{ClothingType: "shirt", Color: "blue"},
		},
		{
			name: "plain object",
			raw:  `{"clothing_type":"dress","color":"red","style":"casual","material":"cotton","occasion":"summer"}`,
			want: domain.Attributes{ClothingType: "dress", Color: "red", Style: "casual", Material: "cotton", Occasion: "summer"},
		},
		{
			name: "markdown fence",
			raw:  "```json\n{\"clothing_type\": \"jeans\", \"material\": \"denim\"}\n```",
			want: domain.Attributes{ClothingType: "jeans", Material: "denim"},
		},
		{
			name: "braces inside strings",
			raw:  `Result: {"clothing_type":"hoodie {oversized}","style":"street \"wear\""} done`,
			want: domain.Attributes{ClothingType: "hoodie {oversized}", Style: `street "wear"`},
		},
		{
			name: "first block broken, second valid",
			raw:  `{not json} then {"color":"green"}`,
			want: domain.Attributes{Color: "green"},
		},
		{
			name: "value normalization",
			raw:  `{"clothing_type":"  coat ","color":["black","white"],"style":null,"material":42,"occasion":true}`,
			want: domain.Attributes{ClothingType: "coat", Color: "black, white", Material: "42", Occasion: "true"},
		},
		{
			name: "case-insensitive keys",
			raw:  `{"Clothing_Type":"skirt","COLOR":"Navy","color":"navy"}`,
			want: domain.Attributes{ClothingType: "skirt", Color: "navy"},
		},
		{
			name: "thinking block dropped",
			raw:  `<think>the user wants {"color":"wrong"}</think>{"color":"beige"}`,
			want: domain.Attributes{Color: "beige"},
		},
		{
			name: "extra keys ignored",
			raw:  `{"clothing_type":"boots","brand":"acme"}`,
			want: domain.Attributes{ClothingType: "boots"},
		},
		{
			name: "empty object",
			raw:  `{}`,
			want: domain.Attributes{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAttributes(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAttributesErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind domain.ParseErrorKind
	}{
		{"refusal", "I cannot process this image", domain.ParseNoJSONFound},
		{"empty", "   ", domain.ParseNoJSONFound},
		{"unbalanced", `{"clothing_type": "shirt"`, domain.ParseNoJSONFound},
		{"array", `["shirt","blue"]`, domain.ParseInvalidType},
		{"string", `"shirt"`, domain.ParseInvalidType},
		{"number", `42`, domain.ParseInvalidType},
		{"null", `null`, domain.ParseInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAttributes(tt.raw)
			var pe *domain.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
		})
	}
}

func TestParseAttributesArrays(t *testing.T) {
	for _, raw := range []string{
		`[{"clothing_type":"shirt"}]`,
		`Here: [{"clothing_type":"shirt"}]`,
		"```json\n[{\"clothing_type\":\"shirt\"},{\"color\":\"red\"}]\n```",
		`Items [1]: [{"clothing_type":"shirt"}] and {"color":"red"}`,
	} {
		_, err := ParseAttributes(raw)
		var pe *domain.ParseError
		require.ErrorAs(t, err, &pe, raw)
		assert.Equal(t, domain.ParseInvalidType, pe.Kind, raw)
	}

	got, err := ParseAttributes(`See [1] and [note]: {"color":"red"}`)
	require.NoError(t, err)
	assert.Equal(t, domain.Attributes{Color: "red"}, got)
}

func TestParseAttributesStopsAtFirstObject(t *testing.T) {
	raw := `{"color":"red"} ` + strings.Repeat("{", 200000)

	done := make(chan struct{})
	var got domain.Attributes
	var err error
	go func() {
		defer close(done)
		got, err = ParseAttributes(raw)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ParseAttributes did not return")
	}
	require.NoError(t, err)
	assert.Equal(t, domain.Attributes{Color: "red"}, got)
}

func TestMatchBracket(t *testing.T) {
	s := `a {"x":{"y":[1,"]"]}} b`
	assert.Equal(t, len(s)-3, matchBracket(s, 2))
	assert.Equal(t, -1, matchBracket(`{"open":`, 0))
}
