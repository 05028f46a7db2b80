package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scontrini/backend/internal/domain"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Index     int    `json:"index"`
		Reasoning string `json:"reasoning"`
	}

	tests := []struct {
		name    string
		content string
		want    payload
		wantErr bool
	}{
		{name: "plain object", content: `{"index":2,"reasoning":"ok"}`, want: payload{2, "ok"}},
		{name: "code fence", content: "```json\n{\"index\":1,\"reasoning\":\"fence\"}\n```", want: payload{1, "fence"}},
		{name: "bare fence", content: "```\n{\"index\":3}\n```", want: payload{Index: 3}},
		{name: "prose around object", content: `Ecco la risposta: {"index":0,"reasoning":"primo"} spero aiuti`, want: payload{0, "primo"}},
		{name: "empty", content: "   ", wantErr: true},
		{name: "not json", content: "nessun prodotto", wantErr: true},
		{name: "broken object", content: `risposta {"index": } fine`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			err := DecodeJSON(tt.content, &got)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrMalformedLLMResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
