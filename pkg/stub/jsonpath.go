package stub

import (
	"github.com/ohler55/ojg/jp"

	"github.com/getmockd/imposterd/pkg/imposter"
)

func parseSelector(selector string) (jp.Expr, error) {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, imposter.Configurationf("jsonpath selector %q: %v", selector, err)
	}
	return x, nil
}

// selectValue narrows a JSON-encoded request field to the values the
// selector picks. Non-JSON text selects nothing.
func selectValue(x jp.Expr, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var doc any
	if err := decodeValue([]byte(s), &doc); err != nil {
		return nil
	}
	results := x.Get(doc)
	switch len(results) {
	case 0:
		return nil
	case 1:
		return results[0]
	default:
		return results
	}
}
