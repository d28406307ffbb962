package safe2pay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTransactionID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "inside ResponseDetail",
			raw:  `{"HasError":false,"ResponseDetail":{"IdTransaction":12345,"Key":"000201abc"}}`,
			want: "12345",
		},
		{
			name: "at the root with a ResponseDetail present",
			raw:  `{"IdTransaction":778899,"ResponseDetail":{"Key":"000201abc"}}`,
			want: "778899",
		},
		{
			name: "at the root without envelope",
			raw:  `{"idTransaction":"tx-9"}`,
			want: "tx-9",
		},
		{
			name: "string id inside detail",
			raw:  `{"ResponseDetail":{"Id":"abc-1"}}`,
			want: "abc-1",
		},
		{
			name: "absent",
			raw:  `{"ResponseDetail":{"Key":"000201abc"}}`,
			want: "",
		},
		{
			name: "unparseable",
			raw:  `not json`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTransactionID(json.RawMessage(tt.raw)))
		})
	}
}
