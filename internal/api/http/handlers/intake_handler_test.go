package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/service"
)

func TestParseChatCommand(t *testing.T) {
	cases := []struct {
		name string
		text string
		want service.IntakeInput
	}{
		{
			name: "all fields",
			text: "Jane Doe | 12 Main St | ring twice",
			want: service.IntakeInput{CustomerName: "Jane Doe", Address: "12 Main St", Notes: "ring twice", Origin: domain.OriginChat},
		},
		{
			name: "notes keep extra separators",
			text: "Jane|12 Main St|gate | side door",
			want: service.IntakeInput{CustomerName: "Jane", Address: "12 Main St", Notes: "gate | side door", Origin: domain.OriginChat},
		},
		{
			name: "name only",
			text: "  Jane  ",
			want: service.IntakeInput{CustomerName: "Jane", Origin: domain.OriginChat},
		},
		{
			name: "empty",
			text: "",
			want: service.IntakeInput{Origin: domain.OriginChat},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseChatCommand(tc.text))
		})
	}
}
