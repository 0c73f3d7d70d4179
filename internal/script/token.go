package script

import "strings"

// TokenKind identifies a body token
type TokenKind uint8

const (
	TokInvoke TokenKind = iota
	TokIf
	TokThen
	TokElse
	TokElseIf
	TokEndIf
	TokWhile
	TokDo
	TokEndWhile
	TokNot
	TokEndNot
	TokChoose
	TokEndChoose
	TokAchieve
	TokReturn
	TokEndReturn
)

var keywords = map[string]TokenKind{
	"if":        TokIf,
	"then":      TokThen,
	"else":      TokElse,
	"elseif":    TokElseIf,
	"endif":     TokEndIf,
	"while":     TokWhile,
	"do":        TokDo,
	"endwhile":  TokEndWhile,
	"not":       TokNot,
	"endnot":    TokEndNot,
	"choose":    TokChoose,
	"endchoose": TokEndChoose,
	"achieve":   TokAchieve,
	"return":    TokReturn,
	"endreturn": TokEndReturn,
}

var keywordNames = func() map[TokenKind]string {
	m := make(map[TokenKind]string, len(keywords))
	for k, v := range keywords {
		m[v] = k
	}
	return m
}()

// IsKeyword reports whether name is reserved in script bodies
func IsKeyword(name string) bool {
	_, ok := keywords[name]
	return ok
}

// Token is one element of a script body
type Token struct {
	Kind TokenKind
	// Call is the invoked term for TokInvoke and the goal for TokAchieve
	Call Term
}

// Invoke builds an invocation token
func Invoke(call Term) Token {
	return Token{Kind: TokInvoke, Call: call}
}

func (t Token) String() string {
	switch t.Kind {
	case TokInvoke:
		return t.Call.String()
	case TokAchieve:
		return "achieve " + t.Call.String()
	default:
		return keywordNames[t.Kind]
	}
}

// FormatBody renders tokens back to parseable text
func FormatBody(body []Token) string {
	parts := make([]string, len(body))
	for i, t := range body {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}
