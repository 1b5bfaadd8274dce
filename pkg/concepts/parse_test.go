package concepts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseConcepts(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		want   []string
		wantOK bool
	}{
		{
			name:   "list surrounded by prose",
			reply:  `Claro! Aqui estão: ["a", "b"] Espero ter ajudado.`,
			want:   []string{"a", "b"},
			wantOK: true,
		},
		{
			name:   "normalizes labels",
			reply:  `["  Reencarnação ", "CARIDADE", "", "   "]`,
			want:   []string{"reencarnação", "caridade"},
			wantOK: true,
		},
		{
			name:   "list nested in an object",
			reply:  `{"concepts": ["Fé", "Esperança"]}`,
			want:   []string{"fé", "esperança"},
			wantOK: true,
		},
		{
			name:   "non string entries dropped",
			reply:  `["amor", 3, null, {"x": 1}]`,
			want:   []string{"amor"},
			wantOK: true,
		},
		{
			name:   "empty list is well formed",
			reply:  `[]`,
			want:   []string{},
			wantOK: true,
		},
		{name: "no brackets", reply: "Não encontrei conceitos.", want: []string{}},
		{name: "reversed brackets", reply: "] e [", want: []string{}},
		{name: "malformed json", reply: `["a", "b",, ]`, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseConcepts(tt.reply)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveModel(t *testing.T) {
	assert.Equal(t, "llama3.2", ResolveModel("baseline"))
	assert.Equal(t, "llama3.2", ResolveModel(""))
	assert.Equal(t, "qwen2.5:7b", ResolveModel("qwen2.5:7b"))
}
