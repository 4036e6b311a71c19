package targets

import (
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
)

func unmarshalParams(msg *cdproto.Message, v easyjson.Unmarshaler) error {
	l := jlexer.Lexer{Data: msg.Params}
	v.UnmarshalEasyJSON(&l)
	return l.Error()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
