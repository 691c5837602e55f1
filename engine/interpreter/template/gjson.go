package template

import "github.com/tidwall/gjson"

func resolveRaw(raw []byte, path string) (string, bool) {
	res := gjson.GetBytes(raw, path)
	if !res.Exists() || res.Type == gjson.Null {
		return "", false
	}
	return res.String(), true
}
