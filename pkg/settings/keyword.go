package settings

import "fmt"

// Keyword is the directive form a setting was written with.
type Keyword uint8

const (
	KeywordDefine          Keyword = iota // #define
	KeywordUndef                          // #undef
	KeywordCommentedDefine                // //#define
	KeywordCommentedUndef                 // //#undef
)

// keywords maps each directive form to its spelling and to whether the
// setting counts as active. A commented-out #undef leaves the option
// enabled; a commented-out #define leaves it disabled.
var keywords = [...]struct {
	text   string
	active bool
}{
	KeywordDefine:          {"#define", true},
	KeywordUndef:           {"#undef", false},
	KeywordCommentedDefine: {"//#define", false},
	KeywordCommentedUndef:  {"//#undef", true},
}

func (k Keyword) String() string {
	if int(k) < len(keywords) {
		return keywords[k].text
	}
	return fmt.Sprintf("keyword(%d)", uint8(k))
}

// Active reports whether a setting written with k is in effect.
func (k Keyword) Active() bool {
	return int(k) < len(keywords) && keywords[k].active
}

func parseKeyword(s string) (Keyword, bool) {
	for k, kw := range keywords {
		if kw.text == s {
			return Keyword(k), true
		}
	}
	return 0, false
}
